package finder

import "github.com/AnatoleLucet/finder/internal"

type (
	// Node is an opaque handle into the host graph. Nil is the absent node.
	Node = internal.Node
	// Facet is a value attached to a node. Nil is the absent facet.
	Facet = internal.Facet

	Match = internal.Match
	Host  = internal.Host

	// Query is what a lookup asks for: a cache key, a display name and a predicate.
	// TypeOf builds one from a Go type.
	Query = internal.Query

	// Rule is the full configuration of a locator, as read and written by editors.
	Rule = internal.RuleState

	Mode  = internal.Mode
	Scope = internal.Scope
)

const (
	NullAlways        = internal.ModeNullAlways
	ByScope           = internal.ModeByScope
	ByName            = internal.ModeByName
	ByTag             = internal.ModeByTag
	ByReferenceFacets = internal.ModeByReferenceFacets
	ByReferenceNodes  = internal.ModeByReferenceNodes
)

const (
	Self        = internal.ScopeSelf
	Descendants = internal.ScopeDescendants
	Ancestors   = internal.ScopeAncestors
	Global      = internal.ScopeGlobal
)

const DefaultTag = internal.DefaultTag

// DefaultRule returns the rule a new locator starts with.
func DefaultRule() Rule { return internal.DefaultRuleState() }

func ParseMode(s string) (Mode, error)   { return internal.ParseMode(s) }
func ParseScope(s string) (Scope, error) { return internal.ParseScope(s) }
