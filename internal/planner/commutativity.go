// Package planner classifies logical query-plan nodes by whether they can be
// pushed down through a distributed merge-scan boundary without changing
// results (spec.md §9 "Polymorphism over plan nodes").
package planner

// PlanKind enumerates the closed set of logical-plan node variants the
// classifier discriminates.
type PlanKind int

const (
	Projection PlanKind = iota
	Filter
	Window
	Aggregate
	Sort
	Join
	CrossJoin
	Repartition
	Union
	TableScan
	EmptyRelation
	Subquery
	SubqueryAlias
	Limit
	Extension
	Distinct
	Unnest
	Statement
	Values
	Explain
	Analyze
	Prepare
	DescribeTable
	Dml
	Ddl
)

// ExprKind enumerates the closed set of scalar-expression variants appearing
// inside a Projection or Filter node.
type ExprKind int

const (
	Column ExprKind = iota
	ScalarVariable
	Literal
	BinaryExpr
	Not
	IsNotNull
	IsNull
	IsTrue
	IsFalse
	IsNotTrue
	IsNotFalse
	Negative
	Between
	SortExpr
	Exists
	Like
	ILike
	SimilarTo
	IsUnknown
	IsNotUnknown
	GetIndexedField
	Case
	Cast
	TryCast
	ScalarFunction
	ScalarUDF
	AggregateFunction
	WindowFunction
	AggregateUDF
	InList
	InSubquery
	ScalarSubquery
	Wildcard
	Alias
	QualifiedWildcard
	GroupingSet
	Placeholder
	OuterReferenceColumn
)

// Plan is a minimal logical-plan node: enough shape for the classifier to
// dispatch on Kind and recurse into the expressions or extension name that
// matter for commutativity, without modeling a full query-plan tree.
type Plan struct {
	Kind          PlanKind
	Exprs         []Expr // Projection's projected expressions
	Predicate     *Expr  // Filter's predicate
	ExtensionName string // Extension's registered node name
}

// Expr is a minimal scalar-expression node: just enough for CheckExpr to
// classify it by Kind.
type Expr struct {
	Kind ExprKind
}

// Transformer rewrites a plan node that is conditionally or already
// transformed-commutative, returning ok=false if no rewrite applies.
type Transformer func(Plan) (Plan, bool)

// CommutativityKind is the tag of a Commutativity value.
type CommutativityKind int

const (
	// Commutative: the node can be pushed through the merge-scan boundary unchanged.
	Commutative CommutativityKind = iota
	// PartialCommutative: the node can be pushed down, but a copy must also
	// remain above the merge-scan boundary (e.g. Limit, Distinct).
	PartialCommutative
	// ConditionalCommutative: commutative only if Transformer succeeds.
	ConditionalCommutative
	// TransformedCommutative: commutative after applying Transformer.
	TransformedCommutative
	// NonCommutative: must stay above the merge-scan boundary.
	NonCommutative
	// Unimplemented: the classifier has no verdict yet for this shape. Never
	// collapse this into NonCommutative — see spec.md §9's open question.
	Unimplemented
	// CheckPartition: commutativity depends on the scanned table's partitioning.
	CheckPartition
	// Unsupported: the node is unrelated to query push-down (DDL, DML, ...).
	Unsupported
)

// Commutativity is the tagged-sum classification result (spec.md §9):
// {Commutative, PartialCommutative, ConditionalCommutative(T),
// TransformedCommutative(T), NonCommutative, Unimplemented, CheckPartition,
// Unsupported}, where T is an optional rewrite function.
type Commutativity struct {
	Kind        CommutativityKind
	Transformer Transformer
}

func commutative() Commutativity    { return Commutativity{Kind: Commutative} }
func nonCommutative() Commutativity { return Commutativity{Kind: NonCommutative} }
func unimplemented() Commutativity  { return Commutativity{Kind: Unimplemented} }
func unsupported() Commutativity    { return Commutativity{Kind: Unsupported} }
func partialCommutative() Commutativity {
	return Commutativity{Kind: PartialCommutative, Transformer: PartialCommutativeTransformer}
}

// PartialCommutativeTransformer is the identity rewrite used for
// PartialCommutative nodes: the same node is pushed down verbatim in addition
// to being kept above the boundary.
func PartialCommutativeTransformer(p Plan) (Plan, bool) {
	return p, true
}

// Categorizer dispatches plan and expression nodes to their Commutativity
// classification.
type Categorizer struct {
	// ExtensionCommutative lists extension node names considered Commutative
	// — the distributed-execution primitives a query planner is free to push
	// below a merge scan (e.g. time-series range manipulation nodes).
	ExtensionCommutative map[string]bool
}

// NewCategorizer returns a Categorizer treating the given extension node
// names as Commutative; any other extension name is Unsupported.
func NewCategorizer(commutativeExtensions ...string) *Categorizer {
	set := make(map[string]bool, len(commutativeExtensions))
	for _, name := range commutativeExtensions {
		set[name] = true
	}
	return &Categorizer{ExtensionCommutative: set}
}

// CheckPlan classifies a logical-plan node (spec.md §9).
func (c *Categorizer) CheckPlan(plan Plan) Commutativity {
	switch plan.Kind {
	case Projection:
		for _, expr := range plan.Exprs {
			if v := c.CheckExpr(expr); v.Kind != Commutative {
				return v
			}
		}
		return commutative()
	case Filter:
		if plan.Predicate == nil {
			return commutative()
		}
		return c.CheckExpr(*plan.Predicate)
	case Window:
		return unimplemented()
	case Aggregate:
		// Every child expression would need checking at the strictest level;
		// left unimplemented per spec.md §9's open question.
		return unimplemented()
	case Sort:
		return unimplemented()
	case Join, CrossJoin:
		return nonCommutative()
	case Repartition:
		return unimplemented()
	case Union:
		return unimplemented()
	case TableScan:
		return Commutativity{Kind: CheckPartition}
	case EmptyRelation:
		return nonCommutative()
	case Subquery, SubqueryAlias:
		return unimplemented()
	case Limit:
		return partialCommutative()
	case Extension:
		return c.CheckExtensionPlan(plan.ExtensionName)
	case Distinct:
		return partialCommutative()
	case Unnest:
		return commutative()
	case Statement, Values, Explain, Analyze, Prepare, DescribeTable, Dml, Ddl:
		return unsupported()
	default:
		return unimplemented()
	}
}

// CheckExtensionPlan classifies a user-defined logical-plan node by its
// registered name.
func (c *Categorizer) CheckExtensionPlan(name string) Commutativity {
	if c.ExtensionCommutative[name] {
		return commutative()
	}
	return unsupported()
}

// CheckExpr classifies a scalar expression (spec.md §9).
func (c *Categorizer) CheckExpr(expr Expr) Commutativity {
	switch expr.Kind {
	case Column, ScalarVariable, Literal, BinaryExpr, Not, IsNotNull, IsNull,
		IsTrue, IsFalse, IsNotTrue, IsNotFalse, Negative, Between, SortExpr, Exists:
		return commutative()
	case Like, ILike, SimilarTo, IsUnknown, IsNotUnknown, GetIndexedField, Case,
		Cast, TryCast, ScalarFunction, ScalarUDF, AggregateFunction, WindowFunction,
		AggregateUDF, InList, InSubquery, ScalarSubquery, Wildcard:
		return unimplemented()
	case Alias, QualifiedWildcard, GroupingSet, Placeholder, OuterReferenceColumn:
		return unimplemented()
	default:
		return unimplemented()
	}
}
