package tools

type Deps struct {
	State     Switcher
	Knowledge KnowledgeDeps
	System    SystemDeps
}

// RegisterBuiltins installs every built-in tool group on d.
func (d *Dispatcher) RegisterBuiltins(deps Deps) {
	d.Register(FlowTools(deps.State)...)
	d.Register(KnowledgeTools(deps.Knowledge)...)
	d.Register(GameTools(deps.Knowledge.Relay)...)
	d.Register(InfoTools(d)...)
	d.Register(SystemTools(deps.System)...)
}
