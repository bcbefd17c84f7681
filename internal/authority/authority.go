// Package authority validates submitted identifiers against the external
// registries the consortium treats as authoritative: gene nomenclature,
// protein accessions, ontology terms, researcher ids and reagent ids.
package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Kind classifies a lookup failure so callers can distinguish a rejected
// identifier from an unreachable registry.
type Kind int

const (
	NotFound Kind = iota
	Invalid
	Unreachable
)

type LookupError struct {
	Kind   Kind
	Field  string
	Value  string
	Detail string
}

func (e *LookupError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s '%s': %s", e.Field, e.Value, e.Detail)
	}
	switch e.Kind {
	case Unreachable:
		return fmt.Sprintf("problem encountered validating %s '%s'", e.Field, e.Value)
	default:
		return fmt.Sprintf("%s '%s' is not found in catalogue", e.Field, e.Value)
	}
}

func notFound(field, value string) *LookupError {
	return &LookupError{Kind: NotFound, Field: field, Value: value}
}

func unreachable(field, value string) *LookupError {
	return &LookupError{Kind: Unreachable, Field: field, Value: value}
}

// Endpoints holds the base URLs of the external registries.
type Endpoints struct {
	GeneTarget   string
	Protein      string
	Nomenclature string
	Researcher   string
	Reagent      string
	DOIProxy     string
	Ontology     string
}

type Client struct {
	http      *http.Client
	endpoints Endpoints
}

func New(endpoints Endpoints) *Client {
	return &Client{
		http:      &http.Client{Timeout: 30 * time.Second},
		endpoints: endpoints,
	}
}

// TargetData is the resolution of a submitted gene target: the approved
// symbol plus every searchable alias.
type TargetData struct {
	Symbol  string
	Aliases []string
}

// ResolveTargets resolves a possibly comma-delimited target list. Canonical
// symbols are rejoined with commas; aliases are unioned with duplicates
// removed so they can all be searched together.
func (c *Client) ResolveTargets(ctx context.Context, targets string) (TargetData, error) {
	var combined TargetData
	seen := make(map[string]bool)
	for _, target := range strings.Split(targets, ",") {
		resolved, err := c.resolveTarget(ctx, strings.TrimSpace(target))
		if err != nil {
			return TargetData{}, err
		}
		if combined.Symbol != "" {
			combined.Symbol += ","
		}
		combined.Symbol += resolved.Symbol
		for _, alias := range resolved.Aliases {
			if !seen[alias] {
				seen[alias] = true
				combined.Aliases = append(combined.Aliases, alias)
			}
		}
	}
	return combined, nil
}

func (c *Client) resolveTarget(ctx context.Context, target string) (TargetData, error) {
	lookupURL := fmt.Sprintf("%s/relationships/gene/%s", c.endpoints.GeneTarget, url.PathEscape(target))
	resp, err := c.get(ctx, lookupURL)
	if err != nil {
		return TargetData{}, unreachable("target_symbol", target)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return TargetData{}, &LookupError{Kind: NotFound, Field: "target_symbol", Value: target, Detail: "is not found"}
	default:
		return TargetData{}, unreachable("target_symbol", target)
	}

	var body struct {
		Approved []string `json:"symbol-approved"`
		Alias    []string `json:"symbol-alias"`
		Previous []string `json:"symbol-previous"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || len(body.Approved) == 0 {
		return TargetData{}, unreachable("target_symbol", target)
	}

	symbol := body.Approved[0]
	aliases := append([]string{symbol}, body.Alias...)
	aliases = append(aliases, body.Previous...)
	return TargetData{Symbol: symbol, Aliases: aliases}, nil
}

// TargetAliases re-derives the alias set for an already-approved symbol.
// Used by the reindex driver; a failed lookup yields just the bare symbol.
func (c *Client) TargetAliases(ctx context.Context, symbol string) []string {
	resolved, err := c.resolveTarget(ctx, symbol)
	if err != nil {
		return []string{symbol}
	}
	return resolved.Aliases
}

// CheckProteinAccessions validates each member of a comma-delimited protein
// accession list. Existence check only.
func (c *Client) CheckProteinAccessions(ctx context.Context, accessions string) error {
	for _, accession := range strings.Split(accessions, ",") {
		if err := c.checkProteinAccession(ctx, strings.TrimSpace(accession)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) checkProteinAccession(ctx context.Context, accession string) error {
	lookupURL := fmt.Sprintf("%s/uniprot/%s.rdf?include=yes", c.endpoints.Protein, url.PathEscape(accession))
	resp, err := c.get(ctx, lookupURL)
	if err != nil {
		return unreachable("uniprot_accession_number", accession)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return notFound("uniprot_accession_number", accession)
	}
	return nil
}

// CheckNomenclatureIDs validates each member of a comma-delimited gene
// nomenclature id list. The registry reports a found count; valid iff > 0.
func (c *Client) CheckNomenclatureIDs(ctx context.Context, ids string) error {
	for _, id := range strings.Split(ids, ",") {
		if err := c.checkNomenclatureID(ctx, strings.TrimSpace(id)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) checkNomenclatureID(ctx context.Context, id string) error {
	lookupURL := fmt.Sprintf("%s/fetch/hgnc_id/%s", c.endpoints.Nomenclature, url.PathEscape(id))
	resp, err := c.get(ctx, lookupURL)
	if err != nil {
		return unreachable("hgnc_id", id)
	}
	defer resp.Body.Close()

	var body struct {
		Response *struct {
			NumFound int `json:"numFound"`
		} `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Response == nil {
		return unreachable("hgnc_id", id)
	}
	if resp.StatusCode != http.StatusOK || body.Response.NumFound <= 0 {
		return notFound("hgnc_id", id)
	}
	return nil
}

// CheckResearcherIDs validates each member of a comma-delimited researcher
// id list by existence check.
func (c *Client) CheckResearcherIDs(ctx context.Context, orcids string) error {
	for _, orcid := range strings.Split(orcids, ",") {
		if err := c.checkResearcherID(ctx, strings.TrimSpace(orcid)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) checkResearcherID(ctx context.Context, orcid string) error {
	lookupURL := fmt.Sprintf("%s/%s", c.endpoints.Researcher, url.PathEscape(orcid))
	resp, err := c.get(ctx, lookupURL)
	if err != nil {
		return unreachable("orcid", orcid)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return notFound("orcid", orcid)
	}
	return nil
}

// CheckReagentID validates a single reagent id by existence check.
func (c *Client) CheckReagentID(ctx context.Context, rrid string) error {
	lookupURL := fmt.Sprintf("%s/resolver/RRID:%s.json", c.endpoints.Reagent, url.PathEscape(rrid))
	resp, err := c.get(ctx, lookupURL)
	if err != nil {
		return unreachable("rrid", rrid)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return notFound("rrid", rrid)
	}
	return nil
}

// CheckDOI validates an already-canonicalized DOI against the resolver
// proxy. The proxy reports responseCode 1 on a resolvable handle.
func (c *Client) CheckDOI(ctx context.Context, doi string) error {
	lookupURL := fmt.Sprintf("%s/api/handles/%s?type=URL", c.endpoints.DOIProxy, url.QueryEscape(doi))
	resp, err := c.get(ctx, lookupURL)
	if err != nil {
		return unreachable("doi", doi)
	}
	defer resp.Body.Close()

	var body struct {
		ResponseCode int `json:"responseCode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return notFound("doi", doi)
	}
	if resp.StatusCode != http.StatusOK || body.ResponseCode != 1 {
		return notFound("doi", doi)
	}
	return nil
}

const ontologyPrefix = "UBERON:"

// CheckOntologyTerm validates an anatomical ontology id. The prefix gate is
// local; comma-lists are not supported for this field.
func (c *Client) CheckOntologyTerm(ctx context.Context, ontologyID string) error {
	if !strings.HasPrefix(ontologyID, ontologyPrefix) {
		return &LookupError{
			Kind:   Invalid,
			Field:  "organ_uberon_id",
			Value:  ontologyID,
			Detail: fmt.Sprintf("must begin with '%s'", ontologyPrefix),
		}
	}
	lookupURL := fmt.Sprintf("%s/api/terms?id=%s", c.endpoints.Ontology, url.QueryEscape(ontologyID))
	resp, err := c.get(ctx, lookupURL)
	if err != nil {
		return unreachable("organ_uberon_id", ontologyID)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &LookupError{Kind: NotFound, Field: "organ_uberon_id", Value: ontologyID, Detail: "is not found"}
	}
	return nil
}

func (c *Client) get(ctx context.Context, lookupURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	// Bound reads so a misbehaving registry cannot hold the batch open.
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, 1<<20), resp.Body}
	return resp, nil
}
