package triage

import "encoding/json"

const (
	ActionOpenUrgentNotification = "open_urgent_notification"
	ActionForwardToProductTeam   = "forward_to_product_team"
	ActionRespondToCustomer      = "respond_to_customer"
	ActionTagAsPraise            = "tag_as_praise"
)

// RoutingDecision is the action taken for a category plus its single
// action-specific parameter.
type RoutingDecision struct {
	Action   string
	ParamKey string
	Param    string
}

// MarshalJSON renders {"action": ..., <ParamKey>: <Param>}.
func (d RoutingDecision) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"action":   d.Action,
		d.ParamKey: d.Param,
	})
}

// Route maps a category to its routing decision. Anything that is not a
// complaint, suggestion or question is tagged as praise.
func Route(c Category) RoutingDecision {
	switch c {
	case Complaint:
		return RoutingDecision{Action: ActionOpenUrgentNotification, ParamKey: "destination", Param: "#complaints-urgent"}
	case Suggestion:
		return RoutingDecision{Action: ActionForwardToProductTeam, ParamKey: "queue", Param: "ideas"}
	case Question:
		return RoutingDecision{Action: ActionRespondToCustomer, ParamKey: "template", Param: "faq_basic"}
	default:
		return RoutingDecision{Action: ActionTagAsPraise, ParamKey: "label", Param: "praise"}
	}
}
