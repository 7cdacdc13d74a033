package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/flotilla-run/flotilla/pkg/include"
	"github.com/flotilla-run/flotilla/pkg/inventory"
	"github.com/flotilla-run/flotilla/pkg/play"
	"github.com/flotilla-run/flotilla/pkg/vars"
)

// hostStores holds one variable store per host, seeded lazily on first use.
// Seeding layers inventory and play variables in precedence order, so a
// host's store is complete before its first task runs.
type hostStores struct {
	inv          inventory.Provider
	pl           *play.Play
	importParams []include.ImportParam
	extraVars    map[string]interface{}
	varsFiles    []loadedVarsFile

	mu     sync.Mutex
	stores map[string]*vars.Store
}

// loadedVarsFile is a play-level vars file, read once before scheduling.
type loadedVarsFile struct {
	path   string
	values map[string]interface{}
}

func newHostStores(inv inventory.Provider, pl *play.Play, loader include.Loader, extraVars map[string]interface{}) (*hostStores, error) {
	hs := &hostStores{
		inv:       inv,
		pl:        pl,
		extraVars: extraVars,
		stores:    make(map[string]*vars.Store),
	}

	for _, path := range pl.VarsFiles {
		var values map[string]interface{}
		if err := loader.LoadInto(path, &values); err != nil {
			var parseFail *include.ParseFailure
			if errors.As(err, &parseFail) {
				return nil, NewPermanentError(CodeParse,
					fmt.Sprintf("vars file %s", path), err)
			}
			return nil, NewPermanentError(CodeVarsFileNotFound,
				fmt.Sprintf("vars file %s", path), err)
		}
		hs.varsFiles = append(hs.varsFiles, loadedVarsFile{path: path, values: values})
	}

	return hs, nil
}

// setImportParams records the parameters collected from merged imports; they
// persist in every host store at include-parameter precedence.
func (hs *hostStores) setImportParams(params []include.ImportParam) {
	hs.importParams = params
}

// Get returns the store for host, seeding it on first access.
func (hs *hostStores) Get(host *inventory.Host) *vars.Store {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if s, ok := hs.stores[host.Name]; ok {
		return s
	}

	s := vars.NewStore()
	s.SetAll(hs.inv.GroupVars(host.Name), vars.PrecedenceGroupVars)
	s.SetAll(host.Vars, vars.PrecedenceHostVars)
	s.SetAll(hs.pl.Vars, vars.PrecedencePlayVars)
	for _, vf := range hs.varsFiles {
		s.SetAll(vf.values, vars.PrecedencePlayVarsFiles)
	}
	for _, p := range hs.importParams {
		s.Set(p.Name, p.Value, vars.PrecedenceIncludeParams)
	}
	s.SetAll(hs.extraVars, vars.PrecedenceExtraVars)

	hs.stores[host.Name] = s
	return s
}

// SetFacts places gathered facts on host at fact precedence.
func (hs *hostStores) SetFacts(host *inventory.Host, facts map[string]interface{}) {
	hs.Get(host).SetAll(facts, vars.PrecedenceHostFacts)
}

// Register stores a task's registered result on host.
func (hs *hostStores) Register(host *inventory.Host, name string, value map[string]interface{}) {
	hs.Get(host).Set(name, value, vars.PrecedenceHostFacts)
}
