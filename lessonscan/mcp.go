package lessonscan

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/a11ywatch/kit"
)

type startRequest struct{}

type stopRequest struct{}

type stateRequest struct{}

type suggestRequest struct {
	IssueID string `json:"issueId" jsonschema:"required,description=Id of an issue from the current session"`
}

type historyRequest struct {
	Limit int `json:"limit,omitempty" jsonschema:"description=Max sessions returned (default 20)"`
}

// RegisterMCP registers the lesson scan tools on an MCP server.
func (c *Coordinator) RegisterMCP(srv *mcp.Server) error {
	tools := []struct {
		name, desc string
		reg        func(srv *mcp.Server, name, desc string, ep kit.Endpoint) error
		ep         kit.Endpoint
	}{
		{"lessonscan_start", "Start a lesson scan session. Scans the current screen immediately and then every screen the learner navigates to.",
			kit.RegisterTool[startRequest], c.startEndpoint},
		{"lessonscan_stop", "Stop the active lesson scan and return every issue with the session summary.",
			kit.RegisterTool[stopRequest], c.stopEndpoint},
		{"lessonscan_state", "Return the current lesson scan session: state, screens and issues.",
			kit.RegisterTool[stateRequest], c.stateEndpoint},
		{"lessonscan_suggest", "Fetch remediation text for one issue of the current session.",
			kit.RegisterTool[suggestRequest], c.suggestEndpoint},
		{"lessonscan_history", "List completed lesson scan sessions, newest first.",
			kit.RegisterTool[historyRequest], c.historyEndpoint},
	}
	for _, t := range tools {
		ep := kit.Chain(c.withSession, kit.Logging(c.opts.Logger, t.name))(t.ep)
		if err := t.reg(srv, t.name, t.desc, ep); err != nil {
			return err
		}
	}
	return nil
}

// withSession tags the call with the session current when it arrives.
func (c *Coordinator) withSession(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		if id := c.sessionID(); id != "" {
			ctx = kit.WithSessionID(ctx, id)
		}
		return next(ctx, req)
	}
}

func (c *Coordinator) startEndpoint(ctx context.Context, _ any) (any, error) {
	return c.Start(ctx)
}

func (c *Coordinator) stopEndpoint(ctx context.Context, _ any) (any, error) {
	return c.Stop(ctx)
}

func (c *Coordinator) stateEndpoint(context.Context, any) (any, error) {
	return c.State(), nil
}

func (c *Coordinator) suggestEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*suggestRequest)
	text, err := c.Suggest(ctx, r.IssueID)
	if err != nil {
		return nil, err
	}
	return map[string]string{"issueId": r.IssueID, "suggestion": text}, nil
}

func (c *Coordinator) historyEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*historyRequest)
	limit := r.Limit
	if limit <= 0 {
		limit = 20
	}
	recs, err := c.History(ctx, limit)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []HistoryRecord{}
	}
	return recs, nil
}

// NewMCPServer returns an MCP server exposing the coordinator's tools.
func NewMCPServer(c *Coordinator, version string) (*mcp.Server, error) {
	srv := mcp.NewServer(&mcp.Implementation{Name: "lessonscan", Version: version}, nil)
	if err := c.RegisterMCP(srv); err != nil {
		return nil, err
	}
	return srv, nil
}
