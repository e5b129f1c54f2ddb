package provider

import "github.com/marketroute/marketroute/pkg/model"

// Origin tells the middleware pipeline who initiated a call. Internal
// calls are issued by the orchestrator on its own behalf (for example a
// cache refresh) and skip blacklist checks.
type Origin int

const (
	OriginExternal Origin = iota
	OriginInternal
)

func (o Origin) String() string {
	if o == OriginInternal {
		return "internal"
	}
	return "external"
}

// CallContext accompanies every provider invocation through the
// middleware pipeline.
type CallContext struct {
	Capability model.Capability
	Origin     Origin

	// Parent and Stage are set on internal-origin calls only: the
	// capability whose handling spawned this call, and a short label for
	// the pipeline stage that issued it.
	Parent model.Capability
	Stage  string
}

func ExternalCall(cap model.Capability) CallContext {
	return CallContext{Capability: cap, Origin: OriginExternal}
}

func InternalCall(cap, parent model.Capability, stage string) CallContext {
	return CallContext{Capability: cap, Origin: OriginInternal, Parent: parent, Stage: stage}
}
