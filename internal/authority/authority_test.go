package authority

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := New(Endpoints{
		GeneTarget:   srv.URL,
		Protein:      srv.URL,
		Nomenclature: srv.URL,
		Researcher:   srv.URL,
		Reagent:      srv.URL,
		DOIProxy:     srv.URL,
		Ontology:     srv.URL,
	})
	return client, srv
}

func lookupKind(t *testing.T, err error) Kind {
	t.Helper()
	var lerr *LookupError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected *LookupError, got %T: %v", err, err)
	}
	return lerr.Kind
}

func TestResolveTargetsSingle(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/relationships/gene/CD4" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"symbol-approved":["CD4"],"symbol-alias":["CD4mut"],"symbol-previous":["T4"]}`))
	})

	data, err := client.ResolveTargets(context.Background(), "CD4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data.Symbol != "CD4" {
		t.Errorf("symbol = %q", data.Symbol)
	}
	want := []string{"CD4", "CD4mut", "T4"}
	if len(data.Aliases) != len(want) {
		t.Fatalf("aliases = %v, want %v", data.Aliases, want)
	}
	for i := range want {
		if data.Aliases[i] != want[i] {
			t.Errorf("aliases[%d] = %q, want %q", i, data.Aliases[i], want[i])
		}
	}
}

func TestResolveTargetsCommaListUnionsAliases(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/relationships/gene/CD4":
			w.Write([]byte(`{"symbol-approved":["CD4"],"symbol-alias":["SHARED"],"symbol-previous":[]}`))
		case "/relationships/gene/CD8":
			w.Write([]byte(`{"symbol-approved":["CD8A"],"symbol-alias":["SHARED"],"symbol-previous":["CD8"]}`))
		default:
			http.NotFound(w, r)
		}
	})

	data, err := client.ResolveTargets(context.Background(), "CD4, CD8")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data.Symbol != "CD4,CD8A" {
		t.Errorf("symbol = %q, want CD4,CD8A", data.Symbol)
	}
	seen := make(map[string]int)
	for _, alias := range data.Aliases {
		seen[alias]++
	}
	if seen["SHARED"] != 1 {
		t.Errorf("duplicate alias not removed: %v", data.Aliases)
	}
}

func TestResolveTargetsNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	_, err := client.ResolveTargets(context.Background(), "NOPE")
	if kind := lookupKind(t, err); kind != NotFound {
		t.Errorf("kind = %v, want NotFound", kind)
	}
}

func TestResolveTargetsUnreachable(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()
	_, err := client.ResolveTargets(context.Background(), "CD4")
	if kind := lookupKind(t, err); kind != Unreachable {
		t.Errorf("kind = %v, want Unreachable", kind)
	}
}

func TestCheckNomenclatureID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fetch/hgnc_id/HGNC:1678":
			w.Write([]byte(`{"response":{"numFound":1}}`))
		case "/fetch/hgnc_id/HGNC:0":
			w.Write([]byte(`{"response":{"numFound":0}}`))
		default:
			http.NotFound(w, r)
		}
	})

	if err := client.CheckNomenclatureIDs(context.Background(), "HGNC:1678"); err != nil {
		t.Errorf("valid id rejected: %v", err)
	}
	err := client.CheckNomenclatureIDs(context.Background(), "HGNC:0")
	if kind := lookupKind(t, err); kind != NotFound {
		t.Errorf("zero found count: kind = %v, want NotFound", kind)
	}
}

func TestCheckProteinAccessionsCommaList(t *testing.T) {
	var paths []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
	})
	if err := client.CheckProteinAccessions(context.Background(), "P01730, P01732"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("expected 2 lookups, got %v", paths)
	}
}

func TestCheckReagentIDNot200(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	err := client.CheckReagentID(context.Background(), "AB_123")
	if kind := lookupKind(t, err); kind != NotFound {
		t.Errorf("kind = %v, want NotFound", kind)
	}
}

func TestCheckDOIResponseCode(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("type") != "URL" {
			t.Errorf("missing type=URL query")
		}
		switch r.URL.Path {
		case "/api/handles/10.1/good":
			w.Write([]byte(`{"responseCode":1}`))
		default:
			w.Write([]byte(`{"responseCode":100}`))
		}
	})

	if err := client.CheckDOI(context.Background(), "10.1/good"); err != nil {
		t.Errorf("resolvable DOI rejected: %v", err)
	}
	if err := client.CheckDOI(context.Background(), "10.1/bad"); err == nil {
		t.Error("expected error for responseCode != 1")
	}
}

func TestCheckOntologyTermPrefixGate(t *testing.T) {
	called := false
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	err := client.CheckOntologyTerm(context.Background(), "CL:0000000")
	if kind := lookupKind(t, err); kind != Invalid {
		t.Errorf("kind = %v, want Invalid", kind)
	}
	if called {
		t.Error("remote lookup attempted for id failing the prefix gate")
	}
	if err := client.CheckOntologyTerm(context.Background(), "UBERON:0002113"); err != nil {
		t.Errorf("valid term rejected: %v", err)
	}
}

func TestTargetAliasesFallsBackToBareSymbol(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()
	aliases := client.TargetAliases(context.Background(), "CD4")
	if len(aliases) != 1 || aliases[0] != "CD4" {
		t.Errorf("aliases = %v, want [CD4]", aliases)
	}
}
