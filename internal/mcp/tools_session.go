package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"spe/internal/domain"
	"spe/internal/secret"
	"spe/internal/service"
)

func (s *Server) registerSessionTools() {
	// ── login ──────────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("login",
		mcp.WithDescription("Log in to the remote document server and reconcile the local catalog with it"),
		mcp.WithString("email", mcp.Description("Account email"), mcp.Required()),
		mcp.WithString("password", mcp.Description("Account password"), mcp.Required()),
		mcp.WithBoolean("remember", mcp.Description("Remember the password for the next start (optional)")),
	), s.handleLogin)

	// ── register ───────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("register",
		mcp.WithDescription("Create a remote account, then log in with it"),
		mcp.WithString("email", mcp.Description("Account email"), mcp.Required()),
		mcp.WithString("password", mcp.Description("Account password"), mcp.Required()),
	), s.handleRegister)

	// ── logout ─────────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("logout",
		mcp.WithDescription("Stop talking to the remote. Documents stay local."),
		mcp.WithString("forgetEmail", mcp.Description("Also forget the remembered password of this account (optional)")),
	), s.handleLogout)

	// ── session_status ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("session_status",
		mcp.WithDescription("Check whether the remote session is still valid"),
	), s.handleSessionStatus)

	// ── reconcile ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("reconcile",
		mcp.WithDescription("Merge the local catalog with the remote one, newest copy of each document wins"),
	), s.handleReconcile)
}

// loginResult is returned by login and register.
type loginResult struct {
	Authenticated bool           `json:"authenticated"`
	Report        service.Report `json:"report"`
	Error         string         `json:"error,omitempty"`
}

func credentials(req mcp.CallToolRequest) (domain.Credentials, error) {
	email, err := requireString(req, "email")
	if err != nil {
		return domain.Credentials{}, err
	}
	password, err := requireString(req, "password")
	if err != nil {
		return domain.Credentials{}, err
	}
	return domain.Credentials{Email: email, Password: password}, nil
}

func (s *Server) handleLogin(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	creds, err := credentials(req)
	if err != nil {
		return nil, err
	}
	report, err := s.state.Login(ctx, creds)
	if !s.state.Authenticated() {
		return nil, err
	}
	if req.GetBool("remember", false) && s.secrets != nil {
		if rerr := secret.Remember(s.secrets, creds.Email, creds.Password); rerr != nil {
			s.log.Warn("remembering credentials failed", "error", rerr)
		}
	}
	return sessionResult(report, err)
}

func (s *Server) handleRegister(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	creds, err := credentials(req)
	if err != nil {
		return nil, err
	}
	report, err := s.state.Register(ctx, creds)
	if !s.state.Authenticated() {
		return nil, err
	}
	return sessionResult(report, err)
}

// sessionResult reports a logged-in session. A reconcile error is shown in
// the result because the session itself is usable.
func sessionResult(report service.Report, err error) (*mcp.CallToolResult, error) {
	res := loginResult{Authenticated: true, Report: report}
	if err != nil {
		res.Error = err.Error()
	}
	return jsonResult(res)
}

func (s *Server) handleLogout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.state.Logout(ctx)
	if email := req.GetString("forgetEmail", ""); email != "" && s.secrets != nil {
		if err := secret.Forget(s.secrets, email); err != nil {
			return nil, fmt.Errorf("forget credentials: %w", err)
		}
	}
	return textResult("Logged out"), nil
}

func (s *Server) handleSessionStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]bool{"authenticated": s.state.CheckSession(ctx)})
}

func (s *Server) handleReconcile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.state.Reconcile(ctx)
	// Without per-document failures the whole run failed.
	if err != nil && len(report.Failed) == 0 {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	res := struct {
		Report service.Report `json:"report"`
		Error  string         `json:"error,omitempty"`
	}{Report: report}
	if err != nil {
		res.Error = err.Error()
	}
	return jsonResult(res)
}
