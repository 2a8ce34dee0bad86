package daemon

import (
	"encoding/json"
	"fmt"

	"github.com/bbugyi200/axe/internal/model"
	"github.com/bbugyi200/axe/internal/query"
	"github.com/bbugyi200/axe/internal/uds"
)

// QueryParams is the request body of the "query" command.
type QueryParams struct {
	Query string `json:"query"`
}

// QueryMatch is one row of a "query" response.
type QueryMatch struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Project string `json:"project"`
	Title   string `json:"title"`
}

// StatusReply is the body of a "status" response.
type StatusReply struct {
	Status  model.StatusSnapshot `json:"status"`
	Metrics model.Metrics        `json:"metrics"`
}

// registerHandlers wires the UDS control commands.
func (d *Daemon) registerHandlers() {
	d.server.Handle("ping", func(req *uds.Request) *uds.Response {
		return uds.SuccessResponse(map[string]string{"status": "ok"})
	})

	d.server.Handle("status", func(req *uds.Request) *uds.Response {
		snap, _ := d.states.ReadStatus()
		return uds.SuccessResponse(StatusReply{
			Status:  snap,
			Metrics: d.states.ReadMetrics(),
		})
	})

	d.server.Handle("query", d.handleQuery)

	d.server.Handle("check", func(req *uds.Request) *uds.Response {
		d.log(LogLevelInfo, "early full check requested via UDS")
		d.triggerFullCheck()
		return uds.SuccessResponse(map[string]string{"status": "check_triggered"})
	})

	d.server.Handle("shutdown", func(req *uds.Request) *uds.Response {
		d.log(LogLevelInfo, "shutdown requested via UDS")
		go d.Shutdown()
		return uds.SuccessResponse(map[string]string{"status": "shutdown_accepted"})
	})
}

// handleQuery evaluates an ad-hoc query against a fresh load of the
// record set and returns the matching specs with effective statuses.
func (d *Daemon) handleQuery(req *uds.Request) *uds.Response {
	var params QueryParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("bad params: %v", err))
		}
	}

	node, err := query.Parse(params.Query)
	if err != nil {
		return uds.ErrorResponse(uds.ErrCodeQuerySyntax, err.Error())
	}

	specs, _, err := d.specs.LoadAll()
	if err != nil {
		return uds.ErrorResponse(uds.ErrCodeInternal, fmt.Sprintf("load records: %v", err))
	}
	forest := model.NewForest(specs)

	matches := []QueryMatch{}
	for _, spec := range query.Select(node, forest) {
		matches = append(matches, QueryMatch{
			Name:    spec.Name,
			Status:  forest.EffectiveStatus(spec).Display(),
			Project: spec.Project(),
			Title:   spec.Title,
		})
	}
	return uds.SuccessResponse(matches)
}
