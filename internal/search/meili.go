package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

// Meili maintains the antibody search index. The index is a derived
// projection of the record store; it can always be rebuilt from it.
type Meili struct {
	client  meili.ServiceManager
	index   string
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the antibody index.
func NewMeili(url, apiKey, index string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		index:  index,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        m.index,
		PrimaryKey: "antibody_uuid",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", m.index, err)
	}

	index := m.client.Index(m.index)
	filterable := []interface{}{"antibody_hubmap_id", "clonality", "host", "organ", "vendor_name"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", m.index, err)
	}
	searchable := []string{
		"antibody_hubmap_id", "target_symbol", "target_aliases", "uniprot_accession_number",
		"hgnc_id", "rrid", "vendor_name", "catalog_number", "clone_id", "host", "organ", "method",
	}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", m.index, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// IndexAntibody adds or replaces one record's projection.
func (m *Meili) IndexAntibody(doc AntibodyDoc) error {
	_, err := m.client.Index(m.index).AddDocuments([]AntibodyDoc{doc}, nil)
	if err != nil {
		return fmt.Errorf("index antibody %s: %w", doc.RegistryID, err)
	}
	return nil
}

// IndexAntibodies bulk-indexes record projections.
func (m *Meili) IndexAntibodies(docs []AntibodyDoc) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := m.client.Index(m.index).AddDocuments(docs, nil)
	if err != nil {
		return fmt.Errorf("bulk index antibodies: %w", err)
	}
	return nil
}

// SetNextVersion mirrors the store's next_version_id back-link into the
// indexed copy of the predecessor.
func (m *Meili) SetNextVersion(previousRegistryID, nextRegistryID string) error {
	resp, err := m.client.Index(m.index).Search("", &meili.SearchRequest{
		Filter: fmt.Sprintf("antibody_hubmap_id = %q", previousRegistryID),
		Limit:  1,
	})
	if err != nil {
		return fmt.Errorf("find indexed antibody %s: %w", previousRegistryID, err)
	}
	if len(resp.Hits) == 0 {
		return fmt.Errorf("no indexed document for %s", previousRegistryID)
	}

	uuid := decodeString(resp.Hits[0], "antibody_uuid")
	if uuid == "" {
		return fmt.Errorf("indexed document for %s has no antibody_uuid", previousRegistryID)
	}

	partial := []map[string]any{{
		"antibody_uuid":   uuid,
		"next_version_id": nextRegistryID,
	}}
	if _, err := m.client.Index(m.index).UpdateDocuments(partial, nil); err != nil {
		return fmt.Errorf("update next_version_id of %s: %w", previousRegistryID, err)
	}
	return nil
}

// Wipe deletes and recreates the index. Used by the reindex driver; a
// missing index is not an error.
func (m *Meili) Wipe() error {
	if _, err := m.client.DeleteIndex(m.index); err != nil && !isIndexNotFound(err) {
		return fmt.Errorf("delete index %s: %w", m.index, err)
	}
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        m.index,
		PrimaryKey: "antibody_uuid",
	}); err != nil {
		return fmt.Errorf("recreate index %s: %w", m.index, err)
	}
	m.configureIndex()
	return nil
}

func isIndexNotFound(err error) bool {
	return strings.Contains(err.Error(), "index_not_found")
}

// Documents pages through the indexed projections, for offline auditing.
func (m *Meili) Documents(offset, limit int64) ([]AntibodyDoc, int64, error) {
	var result meili.DocumentsResult
	err := m.client.Index(m.index).GetDocuments(&meili.DocumentsQuery{
		Offset: offset,
		Limit:  limit,
	}, &result)
	if err != nil {
		return nil, 0, fmt.Errorf("get documents: %w", err)
	}

	docs := make([]AntibodyDoc, 0, len(result.Results))
	for _, hit := range result.Results {
		raw, err := json.Marshal(hit)
		if err != nil {
			return nil, 0, fmt.Errorf("remarshal document: %w", err)
		}
		var doc AntibodyDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, 0, fmt.Errorf("decode document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, result.Total, nil
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
