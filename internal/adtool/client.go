package adtool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ad-scim/bridge/internal/audit"
	"go.uber.org/zap"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultMaxOutput = 10 << 20 // 10 MiB per stream
)

// Config configures how Client invokes the directory tool.
type Config struct {
	// Executable is the directory-management CLI in PATH or an
	// absolute path (AD_TOOL_PATH). Defaults to "pwsh".
	Executable string
	// Args are prepended before the assembled script, e.g.
	// ["-NoProfile", "-NonInteractive", "-Command"].
	Args []string
	// Timeout bounds a single invocation's wall clock. Defaults to 30s.
	Timeout time.Duration
	// MaxOutputBytes caps stdout/stderr capture per stream. Defaults
	// to 10 MiB.
	MaxOutputBytes int64
}

// Client renders and runs directory-tool invocations, classifying
// nothing itself (see Classify) but producing one audit row per run.
type Client struct {
	cfg    Config
	audit  audit.Service
	logger *zap.Logger
}

// New creates a Client. audit receives one entry per invocation,
// fire-and-forget.
func New(cfg Config, auditSvc audit.Service, logger *zap.Logger) *Client {
	if cfg.Executable == "" {
		cfg.Executable = "pwsh"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxOutputBytes == 0 {
		cfg.MaxOutputBytes = defaultMaxOutput
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, audit: auditSvc, logger: logger}
}

// Create provisions a new AD user with the supplied plaintext
// password, forcing ChangePasswordAtLogon:false, and requests the
// created object back for GUID extraction.
func (c *Client) Create(ctx context.Context, params ParamSet, password, scimUserID string) (*Result, error) {
	script := buildCreateScript(params, password)
	audited := toAuditParams(params)
	audited[keyAccountPassword] = password
	audited[keyChangePwdAtLogon] = false
	return c.run(ctx, "New-ADUser", script, audited, scimUserID)
}

// Update changes attributes on an existing AD user. identity is the
// AD object GUID if known, else the sAMAccountName.
func (c *Client) Update(ctx context.Context, identity string, params ParamSet, scimUserID string) (*Result, error) {
	script := buildUpdateScript(identity, params)
	audited := toAuditParams(params)
	audited["Identity"] = identity
	return c.run(ctx, "Set-ADUser", script, audited, scimUserID)
}

// Delete deprovisions identity non-interactively.
func (c *Client) Delete(ctx context.Context, identity, scimUserID string) (*Result, error) {
	script := buildDeleteScript(identity)
	return c.run(ctx, "Remove-ADUser", script, map[string]any{"Identity": identity}, scimUserID)
}

// Read performs a full attribute read-back. Callers treat any error as
// "no usable record"; this never fails the caller's request.
func (c *Client) Read(ctx context.Context, identity, scimUserID string) (map[string]any, error) {
	script := buildReadScript(identity)
	res, err := c.run(ctx, "Get-ADUser", script, map[string]any{"Identity": identity}, scimUserID)
	if err != nil {
		return nil, err
	}
	return res.Parsed, nil
}

func toAuditParams(params ParamSet) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

// run executes script against the configured executable, bounds it by
// Timeout, caps captured output, classifies the outcome into a Result,
// and fires off one audit entry regardless of outcome.
func (c *Client) run(ctx context.Context, cmdlet, script string, auditParams map[string]any, scimUserID string) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	args := append(append([]string{}, c.cfg.Args...), script)
	cmd := exec.CommandContext(runCtx, c.cfg.Executable, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := &cappedWriter{buf: &stdoutBuf, max: c.cfg.MaxOutputBytes}
	stderr := &cappedWriter{buf: &stderrBuf, max: c.cfg.MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	res := &Result{
		Stdout:   strings.TrimSpace(stdoutBuf.String()),
		Stderr:   strings.TrimSpace(stderrBuf.String()),
		Duration: duration,
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.ExitCode = -1
		if res.Stderr == "" {
			res.Stderr = "directory tool timed out after " + c.cfg.Timeout.String()
		}
	case stdout.overflowed || stderr.overflowed:
		res.ExitCode = -1
		res.Stderr = fmt.Sprintf("output exceeded %d byte limit", c.cfg.MaxOutputBytes)
	case runErr != nil:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			if res.Stderr == "" {
				res.Stderr = runErr.Error()
			}
		}
	default:
		res.ExitCode = 0
	}

	if res.ExitCode == 0 && res.Stdout != "" {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(res.Stdout), &parsed); err == nil {
			res.Parsed = parsed
			res.ObjectGUID = extractGUID(parsed)
		}
	}

	c.writeAudit(cmdlet, auditParams, res, scimUserID)

	if res.ExitCode != 0 {
		return res, &CommandError{Stderr: res.Stderr, ExitCode: res.ExitCode, Duration: duration}
	}
	return res, nil
}

// writeAudit is fire-and-forget: its own failure is logged, never
// propagated. It uses a background context so a cancelled request
// context doesn't drop the audit write for work that already ran.
func (c *Client) writeAudit(cmdlet string, params map[string]any, res *Result, scimUserID string) {
	entry := audit.Entry{
		Cmdlet:     cmdlet,
		Parameters: redactParams(params),
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		ExitCode:   res.ExitCode,
		Duration:   res.Duration,
		ScimUserID: scimUserID,
	}
	go func() {
		auditCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.audit.Log(auditCtx, entry); err != nil {
			c.logger.Warn("audit log write failed", zap.String("cmdlet", cmdlet), zap.Error(err))
		}
	}()
}

// extractGUID tolerates two result layouts: a direct string under
// ObjectGUID, or a wrapper object { "value": "<guid>" }.
func extractGUID(result map[string]any) string {
	raw, ok := result["ObjectGUID"]
	if !ok {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case map[string]any:
		if s, ok := v["value"].(string); ok {
			return s
		}
	}
	return ""
}

// cappedWriter discards bytes past max, matching the 10 MiB-per-stream
// output cap without unbounded buffering, and records whether it ever
// had to discard so the caller can surface the overflow as a failure
// rather than silently truncated success output.
type cappedWriter struct {
	buf        *bytes.Buffer
	max        int64
	overflowed bool
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	remaining := w.max - int64(w.buf.Len())
	if remaining <= 0 {
		if len(p) > 0 {
			w.overflowed = true
		}
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		w.buf.Write(p[:remaining])
		w.overflowed = true
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}
