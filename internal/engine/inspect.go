package engine

import (
	"strings"

	"github.com/rcliao/pksim/internal/dosing"
	"github.com/rcliao/pksim/internal/expr"
	"github.com/rcliao/pksim/internal/model"
)

// Inspect parses model text and describes the resulting system.
func (e *Engine) Inspect(text string) (*model.ParseResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, invalid("equations", "model text is empty")
	}
	m, err := e.model(text)
	if err != nil {
		return nil, err
	}
	sys := m.System
	res := &model.ParseResult{
		Compartments:       sys.Compartments,
		Parameters:         sys.Parameters,
		Defaults:           sys.Defaults,
		DerivedExpressions: make(map[string]string, len(sys.Derived)),
		DerivedOrder:       sys.DerivedNames(),
		Equations:          make(map[string]string, len(sys.Equations)),
		ProcessedODE:       sys.ProcessedODE(),
	}
	for _, d := range sys.Derived {
		res.DerivedExpressions[d.Name] = expr.String(d.Expr)
	}
	for name, eq := range sys.Equations {
		res.Equations[name] = expr.String(eq)
	}
	return res, nil
}

// Schedule expands doses against the compartments of text over
// [start, horizon].
func (e *Engine) Schedule(text string, doses []model.Dose, start, horizon float64) ([]model.ScheduledEvent, error) {
	m, err := e.model(text)
	if err != nil {
		return nil, err
	}
	if horizon < start {
		return nil, invalid("t_end", "end time %g before start time %g", horizon, start)
	}
	events, err := dosing.Expand(doses, m.System.Compartments, start, horizon)
	if err != nil {
		return nil, &ValidationError{Field: "doses", Err: err}
	}
	out := make([]model.ScheduledEvent, len(events))
	for i, ev := range events {
		out[i] = model.ScheduledEvent{Time: ev.Time, Kind: ev.Kind.String(), Compartment: ev.Name}
		if ev.Kind == dosing.Bolus {
			out[i].Amount = model.Float(ev.Amount)
		} else {
			out[i].Rate = model.Float(ev.Rate)
		}
	}
	return out, nil
}
