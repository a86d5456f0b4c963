package planner

import "testing"

func TestCheckPlanCommutativeLeaves(t *testing.T) {
	c := NewCategorizer("RangeManipulate", "SeriesNormalize")
	for _, kind := range []PlanKind{Unnest} {
		if got := c.CheckPlan(Plan{Kind: kind}); got.Kind != Commutative {
			t.Fatalf("CheckPlan(%v) = %v, want Commutative", kind, got.Kind)
		}
	}
}

func TestCheckPlanUnimplementedNeverDefaultsToNonCommutative(t *testing.T) {
	c := NewCategorizer()
	for _, kind := range []PlanKind{Window, Aggregate, Sort, Repartition, Union, Subquery, SubqueryAlias} {
		got := c.CheckPlan(Plan{Kind: kind})
		if got.Kind != Unimplemented {
			t.Fatalf("CheckPlan(%v) = %v, want Unimplemented (must not default to NonCommutative)", kind, got.Kind)
		}
	}
}

func TestCheckPlanJoinsAreNonCommutative(t *testing.T) {
	c := NewCategorizer()
	for _, kind := range []PlanKind{Join, CrossJoin, EmptyRelation} {
		if got := c.CheckPlan(Plan{Kind: kind}); got.Kind != NonCommutative {
			t.Fatalf("CheckPlan(%v) = %v, want NonCommutative", kind, got.Kind)
		}
	}
}

func TestCheckPlanLimitAndDistinctArePartialWithIdentityTransformer(t *testing.T) {
	c := NewCategorizer()
	for _, kind := range []PlanKind{Limit, Distinct} {
		got := c.CheckPlan(Plan{Kind: kind})
		if got.Kind != PartialCommutative || got.Transformer == nil {
			t.Fatalf("CheckPlan(%v) = %v, want PartialCommutative with a non-nil transformer", kind, got.Kind)
		}
		rewritten, ok := got.Transformer(Plan{Kind: kind})
		if !ok || rewritten.Kind != kind {
			t.Fatalf("PartialCommutativeTransformer should be an identity rewrite")
		}
	}
}

func TestCheckPlanTableScanChecksPartition(t *testing.T) {
	c := NewCategorizer()
	if got := c.CheckPlan(Plan{Kind: TableScan}); got.Kind != CheckPartition {
		t.Fatalf("CheckPlan(TableScan) = %v, want CheckPartition", got.Kind)
	}
}

func TestCheckPlanDdlAndDmlAreUnsupported(t *testing.T) {
	c := NewCategorizer()
	for _, kind := range []PlanKind{Statement, Values, Explain, Analyze, Prepare, DescribeTable, Dml, Ddl} {
		if got := c.CheckPlan(Plan{Kind: kind}); got.Kind != Unsupported {
			t.Fatalf("CheckPlan(%v) = %v, want Unsupported", kind, got.Kind)
		}
	}
}

func TestCheckExtensionPlanRecognizesRegisteredNames(t *testing.T) {
	c := NewCategorizer("RangeManipulate")
	if got := c.CheckExtensionPlan("RangeManipulate"); got.Kind != Commutative {
		t.Fatalf("CheckExtensionPlan(registered) = %v, want Commutative", got.Kind)
	}
	if got := c.CheckExtensionPlan("SomeOtherNode"); got.Kind != Unsupported {
		t.Fatalf("CheckExtensionPlan(unregistered) = %v, want Unsupported", got.Kind)
	}
}

func TestCheckPlanProjectionUsesStrictestChildExpr(t *testing.T) {
	c := NewCategorizer()
	proj := Plan{Kind: Projection, Exprs: []Expr{{Kind: Column}, {Kind: ScalarFunction}}}
	got := c.CheckPlan(proj)
	if got.Kind != Unimplemented {
		t.Fatalf("CheckPlan(Projection with ScalarFunction) = %v, want Unimplemented", got.Kind)
	}
}

func TestCheckPlanFilterDelegatesToPredicate(t *testing.T) {
	c := NewCategorizer()
	pred := Expr{Kind: BinaryExpr}
	got := c.CheckPlan(Plan{Kind: Filter, Predicate: &pred})
	if got.Kind != Commutative {
		t.Fatalf("CheckPlan(Filter) = %v, want Commutative", got.Kind)
	}
}

func TestCheckExprClassifiesComplexExpressionsUnimplemented(t *testing.T) {
	c := NewCategorizer()
	for _, kind := range []ExprKind{Like, Case, ScalarFunction, AggregateFunction, InList} {
		if got := c.CheckExpr(Expr{Kind: kind}); got.Kind != Unimplemented {
			t.Fatalf("CheckExpr(%v) = %v, want Unimplemented", kind, got.Kind)
		}
	}
}
