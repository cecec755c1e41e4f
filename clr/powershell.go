package clr

import (
	"strings"
	"sync"
)

// AutomationAssembly is the display name of the PowerShell engine assembly.
const AutomationAssembly = "System.Management.Automation, Version=3.0.0.0, Culture=neutral, PublicKeyToken=31bf3856ad364e35"

const (
	runspaceFactoryType   = "System.Management.Automation.Runspaces.RunspaceFactory"
	runspaceType          = "System.Management.Automation.Runspaces.Runspace"
	pipelineType          = "System.Management.Automation.Runspaces.Pipeline"
	commandCollectionType = "System.Management.Automation.Runspaces.CommandCollection"
	psObjectType          = "System.Management.Automation.PSObject"
)

// PowerShell runs script text in a runspace hosted in the default domain.
type PowerShell struct {
	env        *Environment
	automation *Assembly

	mu       sync.Mutex
	runspace Variant
}

// NewPowerShell initializes the latest runtime, loads the automation
// assembly and opens a runspace.
func NewPowerShell(opts ...Option) (*PowerShell, error) {
	env, err := Initialize(Default, "", opts...)
	if err != nil {
		return nil, err
	}
	ps, err := newPowerShell(env)
	if err != nil {
		env.Close()
		return nil, err
	}
	return ps, nil
}

func newPowerShell(env *Environment) (*PowerShell, error) {
	automation, err := env.LoadByName(AutomationAssembly)
	if err != nil {
		return nil, err
	}

	factory, err := automation.Type(runspaceFactoryType)
	if err != nil {
		automation.Release()
		return nil, err
	}
	defer factory.Release()

	runspace, err := factory.Invoke("CreateRunspace", Empty(), nil, Static)
	if err != nil {
		automation.Release()
		return nil, err
	}

	ps := &PowerShell{env: env, automation: automation, runspace: runspace}
	if _, err := ps.call(runspaceType, "Open", runspace); err != nil {
		runspace.Clear()
		automation.Release()
		return nil, err
	}
	env.log.Debug("runspace opened")
	return ps, nil
}

// call invokes an instance method of typeName on target.
func (p *PowerShell) call(typeName, method string, target Variant, args ...Variant) (Variant, error) {
	t, err := p.automation.Type(typeName)
	if err != nil {
		return Variant{}, err
	}
	defer t.Release()
	return t.Invoke(method, target, args, Instance)
}

// Execute runs command piped into Out-String and returns the text of every
// output object.
func (p *PowerShell) Execute(command string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runspace.IsEmpty() {
		return "", newError(InvalidTarget, StageInvoke, "Execute", "runspace closed")
	}

	pipeline, err := p.call(runspaceType, "CreatePipeline", p.runspace)
	if err != nil {
		return "", err
	}
	defer pipeline.Clear()

	commands, err := p.call(pipelineType, "get_Commands", pipeline)
	if err != nil {
		return "", err
	}
	defer commands.Clear()

	for _, c := range []struct{ method, arg string }{
		{"AddScript", command},
		{"Add", "Out-String"},
	} {
		if _, err := p.call(commandCollectionType, c.method, commands, String(c.arg)); err != nil {
			return "", err
		}
	}

	results, err := p.call(pipelineType, "Invoke", pipeline)
	if err != nil {
		return "", err
	}
	defer results.Clear()

	return p.collect(results)
}

// collect joins ToString of every item of a Collection<PSObject>.
func (p *PowerShell) collect(results Variant) (string, error) {
	collection, err := p.env.TypeOf(results)
	if err != nil {
		return "", err
	}
	defer collection.Release()

	count, err := collection.Invoke("get_Count", results, nil, Instance)
	if err != nil {
		return "", err
	}
	n, ok := count.Int()
	if !ok {
		return "", newError(UnsupportedVariantKind, StageInvoke, "get_Count", count.Kind().String())
	}

	psObject, err := p.automation.Type(psObjectType)
	if err != nil {
		return "", err
	}
	defer psObject.Release()

	var b strings.Builder
	for i := int32(0); i < int32(n); i++ {
		item, err := collection.Invoke("get_Item", results, []Variant{Int32(i)}, Instance)
		if err != nil {
			return "", err
		}
		text, err := psObject.Invoke("ToString", item, nil, Instance)
		item.Clear()
		if err != nil {
			return "", err
		}
		if s, ok := text.Text(); ok {
			b.WriteString(s)
		}
	}
	return b.String(), nil
}

// Close closes the runspace and the environment.
func (p *PowerShell) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runspace.IsEmpty() {
		return nil
	}
	_, err := p.call(runspaceType, "Close", p.runspace)
	p.runspace.Clear()
	p.runspace = Empty()
	p.automation.Release()
	if cerr := p.env.Close(); err == nil {
		err = cerr
	}
	return err
}
