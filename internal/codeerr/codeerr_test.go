package codeerr

import (
	"errors"
	"testing"
)

func TestErrorKinds_ImplementError(t *testing.T) {
	cause := errors.New("boom")

	cases := []struct {
		name string
		err  error
	}{
		{"InvalidRequest", &InvalidRequest{Msg: "missing arguments"}},
		{"NotSupported", &NotSupported{Msg: "workspace/willRenameFiles"}},
		{"PluginNotFound", &PluginNotFound{File: "a.rs", Method: "find_definition"}},
		{"AmbiguousPluginSelection", &AmbiguousPluginSelection{Method: "find_definition", Plugins: []string{"a", "b"}, Priority: 50}},
		{"LspTimeout", &LspTimeout{Method: "textDocument/rename"}},
		{"TransportError", &TransportError{LSPName: "rust-analyzer", Cause: cause}},
		{"StalePlan", &StalePlan{Files: []string{"a.rs", "b.rs"}}},
		{"PlanCircularDependency", &PlanCircularDependency{Cycle: []string{"a", "b", "a"}}},
		{"ConsolidationPartial", &ConsolidationPartial{Stage: "merge_manifest", File: "Cargo.toml", Cause: cause}},
		{"Internal", &Internal{Msg: "unexpected nil plan", Cause: cause}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Error() == "" {
				t.Fatalf("%s: empty error message", tc.name)
			}
		})
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	cause := errors.New("pipe closed")
	err := &TransportError{LSPName: "gopls", Cause: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
}

func TestConsolidationPartial_Unwrap(t *testing.T) {
	cause := errors.New("parse failed")
	err := &ConsolidationPartial{Stage: "fix_self_imports", File: "lib.rs", Cause: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
}

func TestErrorsAs_DistinguishesKinds(t *testing.T) {
	var err error = &StalePlan{Files: []string{"x.go"}}

	var stale *StalePlan
	if !errors.As(err, &stale) {
		t.Fatalf("expected errors.As to match *StalePlan")
	}
	if len(stale.Files) != 1 || stale.Files[0] != "x.go" {
		t.Fatalf("unexpected files: %v", stale.Files)
	}

	var ambiguous *AmbiguousPluginSelection
	if errors.As(err, &ambiguous) {
		t.Fatalf("did not expect *StalePlan to match *AmbiguousPluginSelection")
	}
}
