// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the request/response client of the workflow service. Calls
// are synchronous with no retry; failures come back as *RequestError.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/noldarim/wfbuilder/internal/config"
	"github.com/noldarim/wfbuilder/internal/logger"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName   = "github.com/noldarim/wfbuilder/internal/api"
	maxErrorBody = 64 << 10
)

func getLog() *zerolog.Logger {
	l := logger.GetAPILogger()
	return &l
}

// Client talks to one workflow service.
type Client struct {
	base   *url.URL
	http   *http.Client
	tracer trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse service url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("service url must include scheme and host, got: %s", baseURL)
	}

	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 30 * time.Second},
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromConfig creates a client from the service section of cfg.
func NewFromConfig(cfg *config.AppConfig, opts ...Option) (*Client, error) {
	timeout := cfg.Service.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts = append([]Option{WithHTTPClient(&http.Client{Timeout: timeout})}, opts...)
	return New(cfg.Service.RESTURL, opts...)
}

// Generate submits a generation request. Progress is reported on the stream.
func (c *Client) Generate(ctx context.Context, req WorkflowRequest) (*Workflow, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, &RequestError{Op: "generate", Err: fmt.Errorf("description is required")}
	}
	var wf Workflow
	if err := c.doJSON(ctx, "generate", http.MethodPost, "/api/workflows/generate", nil, req, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// Get fetches one workflow record.
func (c *Client) Get(ctx context.Context, id string) (*Workflow, error) {
	var wf Workflow
	if err := c.doJSON(ctx, "get", http.MethodGet, workflowPath(id), nil, nil, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// History lists workflows, newest first.
func (c *Client) History(ctx context.Context, limit, offset int) ([]HistoryItem, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var items []HistoryItem
	if err := c.doJSON(ctx, "history", http.MethodGet, "/api/workflows/", q, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Download returns the generated workflow document as sent by the service.
func (c *Client) Download(ctx context.Context, id string) ([]byte, error) {
	return c.do(ctx, "download", http.MethodGet, workflowPath(id)+"/download", nil, nil)
}

// Delete removes a workflow record.
func (c *Client) Delete(ctx context.Context, id string) error {
	var out Deleted
	return c.doJSON(ctx, "delete", http.MethodDelete, workflowPath(id), nil, nil, &out)
}

// Agents lists the agents known to the service.
func (c *Client) Agents(ctx context.Context) (*AgentList, error) {
	var out AgentList
	if err := c.doJSON(ctx, "agents", http.MethodGet, "/api/agents/list", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Pipeline describes the two halves of the agent pipeline.
func (c *Client) Pipeline(ctx context.Context) (*PipelineInfo, error) {
	var out PipelineInfo
	if err := c.doJSON(ctx, "pipeline", http.MethodGet, "/api/agents/pipeline", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ModelTypes lists the supported model families.
func (c *Client) ModelTypes(ctx context.Context) ([]ModelInfo, error) {
	var out struct {
		Types []ModelInfo `json:"types"`
	}
	if err := c.doJSON(ctx, "model_types", http.MethodGet, "/api/models/types", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Types, nil
}

// Loras lists installed LoRA models.
func (c *Client) Loras(ctx context.Context) ([]Lora, error) {
	var out struct {
		Loras []Lora `json:"loras"`
	}
	if err := c.doJSON(ctx, "loras", http.MethodGet, "/api/models/loras", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Loras, nil
}

// Resolutions lists resolution presets.
func (c *Client) Resolutions(ctx context.Context) ([]Resolution, error) {
	var out struct {
		Resolutions []Resolution `json:"resolutions"`
	}
	if err := c.doJSON(ctx, "resolutions", http.MethodGet, "/api/models/resolutions", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Resolutions, nil
}

// Health checks that the service is up.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.doJSON(ctx, "health", http.MethodGet, "/api/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func workflowPath(id string) string {
	return "/api/workflows/" + url.PathEscape(id)
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	data, err := c.do(ctx, op, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &RequestError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any) (_ []byte, err error) {
	ctx, span := c.tracer.Start(ctx, "api."+op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		buf, merr := json.Marshal(body)
		if merr != nil {
			return nil, &RequestError{Op: op, Err: fmt.Errorf("encode request: %w", merr)}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, &RequestError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		getLog().Debug().Err(err).Str("op", op).Str("url", u.String()).Msg("Request failed")
		return nil, &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	getLog().Debug().Str("op", op).Str("method", method).Str("path", path).
		Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Msg("Request completed")

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &RequestError{Op: op, StatusCode: resp.StatusCode, Detail: parseDetail(raw)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	return data, nil
}
