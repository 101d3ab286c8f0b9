package dispatch

// Plan is the computed decision of what to send for one decoded event.
//
// Broadcast, when non-empty, is sent to the chats of the target operators.
// BroadcastTargetIDs narrows the broadcast to specific operator ids; nil
// means every known operator. PerOperator carries operator-specific
// overrides that replace the broadcast for that operator's chats.
type Plan struct {
	Broadcast          string
	BroadcastTargetIDs map[string]struct{}
	PerOperator        map[string]string
}

// NewBroadcast returns a plan that broadcasts a single text.
func NewBroadcast(text string) *Plan {
	return &Plan{Broadcast: text}
}

// Target narrows the broadcast to the given operator ids.
func (p *Plan) Target(ids ...string) *Plan {
	if p.BroadcastTargetIDs == nil {
		p.BroadcastTargetIDs = make(map[string]struct{}, len(ids))
	}
	for _, id := range ids {
		p.BroadcastTargetIDs[id] = struct{}{}
	}
	return p
}

// SetOperatorMessage records an operator-specific override.
func (p *Plan) SetOperatorMessage(opID, text string) *Plan {
	if p.PerOperator == nil {
		p.PerOperator = make(map[string]string)
	}
	p.PerOperator[opID] = text
	return p
}
