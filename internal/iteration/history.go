package iteration

import (
	"slices"

	"github.com/chirino/case-recorder/internal/model"
)

type group struct {
	kind model.VariableKind
	vars func(*model.IterationRecord) []model.VariableValues
}

// groups lists the variable groups a name is searched in. Responses are
// left out because every response is also listed in another group.
var groups = []group{
	{model.VarDesvar, func(r *model.IterationRecord) []model.VariableValues { return r.Desvars }},
	{model.VarObjective, func(r *model.IterationRecord) []model.VariableValues { return r.Objectives }},
	{model.VarConstraint, func(r *model.IterationRecord) []model.VariableValues { return r.Constraints }},
	{model.VarSysinclude, func(r *model.IterationRecord) []model.VariableValues { return r.Sysincludes }},
	{model.VarInput, func(r *model.IterationRecord) []model.VariableValues { return r.Inputs }},
}

// VariableHistory collects every occurrence of variable across records, each
// tagged with the group it came from and the iteration it belongs to.
func VariableHistory(records []model.IterationRecord, variable string) []model.VariableSample {
	out := []model.VariableSample{}
	for i := range records {
		rec := &records[i]
		for _, g := range groups {
			for _, v := range g.vars(rec) {
				if v.Name != variable {
					continue
				}
				out = append(out, model.VariableSample{
					Name:      v.Name,
					Values:    v.Values,
					Type:      g.kind,
					Counter:   rec.Counter,
					Iteration: slices.Clone(rec.Coordinates),
				})
			}
		}
	}
	return out
}

// Catalog lists the distinct variable names recorded, by group.
func Catalog(records []model.IterationRecord) model.VariableCatalog {
	cat := model.VariableCatalog{
		Desvars:     []string{},
		Objectives:  []string{},
		Constraints: []string{},
		Sysincludes: []string{},
		Inputs:      []string{},
	}
	seen := map[string]bool{}
	for i := range records {
		rec := &records[i]
		for _, g := range groups {
			for _, v := range g.vars(rec) {
				if seen[v.Name] {
					continue
				}
				seen[v.Name] = true
				switch g.kind {
				case model.VarDesvar:
					cat.Desvars = append(cat.Desvars, v.Name)
				case model.VarObjective:
					cat.Objectives = append(cat.Objectives, v.Name)
				case model.VarConstraint:
					cat.Constraints = append(cat.Constraints, v.Name)
				case model.VarSysinclude:
					cat.Sysincludes = append(cat.Sysincludes, v.Name)
				case model.VarInput:
					cat.Inputs = append(cat.Inputs, v.Name)
				}
			}
		}
	}
	return cat
}
