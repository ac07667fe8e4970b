package sema

import "github.com/sushi-lang/sushic/internal/ast"

// checkPerkImpls verifies every `extend T with P` block actually implements
// every method P declares (spec §4.3.6, CE4001/CE4002). Generic-constraint
// satisfaction at monomorphization time (spec §4.3.2's "type argument must
// implement every perk its constraint names") is checked inline in mono.go
// since it needs the concrete instantiated type, not the template.
func (c *Checker) checkPerkImpls() {
	for key, methods := range c.tables.PerkImpls {
		perk, ok := c.tables.Perks[key.Perk]
		if !ok {
			continue // unknown-perk-name is a name-resolution concern, reported elsewhere.
		}
		for _, required := range perk.Methods {
			if _, ok := methods[required.Name]; !ok {
				c.rep.Emit("CE4002", nil, map[string]any{
					"typ": key.Target, "perk": key.Perk, "method": required.Name,
				})
			}
		}
	}
}

// typeSatisfiesPerk reports whether t (named by its display name) has a
// registered `extend t with perk` implementation covering every required
// method. Built-in containers are treated as satisfying no perks beyond
// those the language itself wires into codegen, since they have no
// extend-block and cannot gain one.
func (c *Checker) typeSatisfiesPerk(typeName, perkName string) bool {
	perk, ok := c.tables.Perks[perkName]
	if !ok {
		return false
	}
	methods, ok := c.tables.PerkImpls[ast.PerkImplKey{Target: typeName, Perk: perkName}]
	if !ok {
		return false
	}
	for _, required := range perk.Methods {
		if _, ok := methods[required.Name]; !ok {
			return false
		}
	}
	return true
}
