// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/noldarim/wfbuilder/internal/api"
	"github.com/noldarim/wfbuilder/internal/pipeline"
	"github.com/noldarim/wfbuilder/internal/progress"
	"github.com/noldarim/wfbuilder/internal/session"
	"github.com/noldarim/wfbuilder/internal/stream"
	"github.com/noldarim/wfbuilder/internal/tui"
	"github.com/noldarim/wfbuilder/internal/tui/components/pipelinesummary"
	"github.com/noldarim/wfbuilder/internal/tui/components/pipelineview"
	"github.com/spf13/cobra"
)

// watcher is a started progress session plus the feed its status callback
// writes to.
type watcher struct {
	sess      *session.Session
	feed      *pipelineview.Feed
	connected chan struct{}
	once      sync.Once
	viewOpts  []tea.ProgramOption
}

func (a *app) newWatcher() (*watcher, error) {
	w := &watcher{feed: pipelineview.NewFeed(), connected: make(chan struct{})}
	sess, err := a.session(func(st stream.Status) {
		w.feed.ConnStatus(st)
		if st.State == stream.StateConnected {
			w.once.Do(func() { close(w.connected) })
		}
		if st.State == stream.StateWaiting {
			getLog().Info().Err(st.LastError).Int("failures", st.Failures).Dur("retry_in", st.RetryIn).Msg("Progress stream lost, retrying")
		}
	})
	if err != nil {
		return nil, err
	}
	w.sess = sess
	return w, nil
}

// start connects the session and waits up to timeout for the first open. An
// unreachable stream is not fatal: the reconnector keeps trying.
func (w *watcher) start(ctx context.Context, timeout time.Duration) error {
	if err := w.sess.Start(ctx); err != nil {
		return err
	}
	select {
	case <-w.connected:
	case <-time.After(timeout):
		getLog().Warn().Dur("timeout", timeout).Msg("Progress stream not connected yet, continuing")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (w *watcher) close() {
	w.feed.Close()
	_ = w.sess.Close()
}

// follow shows progress for workflowID until its run ends. It holds the only
// follower subscription for the view. The service record is read once after
// subscribing so a run that finished before the subscription still ends the
// view.
func (w *watcher) follow(ctx context.Context, out io.Writer, client *api.Client, workflowID string, plain bool) (pipelinesummary.SummaryData, error) {
	var pub tui.Publisher = w.feed
	var printer *plainPrinter
	if plain {
		printer = newPlainPrinter(out)
		pub = printer
	}

	token := w.sess.Subscribe(tui.Follow(w.sess, pub, workflowID))
	defer w.sess.Unsubscribe(token)
	if !plain {
		w.feed.Snapshot(w.sess.Progress())
	}

	if wf, err := client.Get(ctx, workflowID); err == nil {
		if msg, ok := finishedMsg(wf); ok {
			seed(w.sess.Aggregator(), wf)
			pub.Snapshot(w.sess.Progress())
			pub.Finish(msg)
		}
	} else {
		getLog().Warn().Err(err).Str("workflow_id", workflowID).Msg("Failed to read workflow state")
	}

	if plain {
		return printer.wait(ctx, w.sess, workflowID)
	}
	return tui.Run(ctx, w.feed, workflowID, w.viewOpts...)
}

// plainPrinter writes one line per stage change, for logs and pipes.
type plainPrinter struct {
	out  io.Writer
	now  func() time.Time
	mu   sync.Mutex
	last map[string]progress.Record
	done chan pipelineview.RunFinishedMsg
	once sync.Once
}

func newPlainPrinter(out io.Writer) *plainPrinter {
	return &plainPrinter{
		out:  out,
		now:  time.Now,
		last: make(map[string]progress.Record),
		done: make(chan pipelineview.RunFinishedMsg, 1),
	}
}

func (p *plainPrinter) Snapshot(s progress.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	records := append(s.Ordered(), s.Informational()...)
	for _, r := range records {
		prev, seen := p.last[r.Stage]
		if (!seen && r.Status == pipeline.StatusPending) || (seen && prev == r) {
			continue
		}
		p.last[r.Stage] = r
		fmt.Fprintf(p.out, "%s %s %-24s %s\n",
			mutedStyle.Render(p.now().Format("15:04:05")),
			stageIcon(r.Status),
			r.Stage,
			mutedStyle.Render(r.Message))
	}
}

func (p *plainPrinter) Finish(msg pipelineview.RunFinishedMsg) {
	p.once.Do(func() { p.done <- msg })
}

func stageIcon(s pipeline.StageStatus) string {
	switch s {
	case pipeline.StatusCompleted:
		return successStyle.Render("✓")
	case pipeline.StatusFailed:
		return errorStyle.Render("✗")
	case pipeline.StatusRunning:
		return warnStyle.Render("▸")
	default:
		return mutedStyle.Render("○")
	}
}

// wait blocks until the run finishes or ctx is done.
func (p *plainPrinter) wait(ctx context.Context, src tui.Source, workflowID string) (pipelinesummary.SummaryData, error) {
	start := time.Now()
	p.Snapshot(src.Progress())

	summary := func() pipelinesummary.SummaryData {
		data := pipelinesummary.FromSnapshot(src.Progress())
		data.WorkflowID = workflowID
		data.Duration = time.Since(start)
		return data
	}

	select {
	case msg := <-p.done:
		data := summary()
		data.Status = msg.Status
		data.Message = msg.Message
		data.ErrorMessage = msg.Error
		return data, nil
	case <-ctx.Done():
		data := summary()
		data.Status = pipelinesummary.StatusInterrupted
		return data, ctx.Err()
	}
}

// finishLine prints the summary and turns a failed run into an error.
func finishLine(out io.Writer, summary pipelinesummary.SummaryData) error {
	fmt.Fprintln(out)
	fmt.Fprintln(out, pipelinesummary.Render(summary))
	if summary.Status == pipelinesummary.StatusFailed {
		if summary.ErrorMessage != "" {
			return fmt.Errorf("workflow %s failed: %s", summary.WorkflowID, summary.ErrorMessage)
		}
		return fmt.Errorf("workflow %s failed", summary.WorkflowID)
	}
	return nil
}

// seed loads the stage states a service record already reports.
func seed(agg *progress.Aggregator, wf *api.Workflow) {
	for _, ap := range wf.AgentProgress {
		status, err := pipeline.ParseStageStatus(ap.Status)
		if err != nil {
			continue
		}
		agg.Record(ap.Name, status, ap.Message)
	}
}

// finishedMsg reports how a service record ended, if it has.
func finishedMsg(wf *api.Workflow) (pipelineview.RunFinishedMsg, bool) {
	switch wf.Status {
	case api.WorkflowCompleted:
		return pipelineview.RunFinishedMsg{Status: pipelinesummary.StatusCompleted}, true
	case api.WorkflowFailed:
		return pipelineview.RunFinishedMsg{Status: pipelinesummary.StatusFailed, Error: wf.Error}, true
	default:
		return pipelineview.RunFinishedMsg{}, false
	}
}

type watchOptions struct {
	plain bool
}

func watchCmd(a *app) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch <workflow-id>",
		Short: "Follow the progress of a submitted workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, a, args[0], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Print one line per stage change instead of the live view")
	return cmd
}

func runWatch(cmd *cobra.Command, a *app, id string, opts watchOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	client, err := a.client()
	if err != nil {
		return err
	}
	wf, err := client.Get(ctx, id)
	if err != nil {
		return err
	}
	if done, err := printIfFinished(out, wf); done {
		return err
	}

	w, err := a.newWatcher()
	if err != nil {
		return err
	}
	defer w.close()

	seed(w.sess.Aggregator(), wf)
	if err := w.start(ctx, a.cfg.Stream.HandshakeTimeout); err != nil {
		return err
	}
	if err := w.sess.Send(map[string]string{"type": "subscribe", "workflow_id": id}); err != nil {
		getLog().Debug().Err(err).Msg("Subscribe not sent, receiving all workflows")
	}

	fmt.Fprintln(out, infoMsg("Watching %s", id))
	summary, err := w.follow(ctx, out, client, id, opts.plain || !isTerminal(out))
	if err != nil {
		return err
	}
	return finishLine(out, summary)
}

// printIfFinished prints the summary of a run that already ended.
func printIfFinished(out io.Writer, wf *api.Workflow) (bool, error) {
	msg, done := finishedMsg(wf)
	if !done {
		return false, nil
	}
	agg := progress.NewAggregator()
	seed(agg, wf)
	data := pipelinesummary.FromSnapshot(agg.Snapshot())
	data.Status = msg.Status
	data.WorkflowID = wf.ID
	data.ErrorMessage = msg.Error
	if wf.CompletedAt != nil {
		data.Duration = wf.CompletedAt.Sub(wf.CreatedAt.Time)
	}
	return true, finishLine(out, data)
}
