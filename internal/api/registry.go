package api

import (
	"github.com/generank/server/internal/service"
)

// DatasetInfo contains information about a dataset for the API response.
type DatasetInfo struct {
	ID     string `json:"id"`
	NObs   int    `json:"n_obs"`
	NGenes int    `json:"n_genes"`
	HasRaw bool   `json:"has_raw"`
}

// DatasetRegistry holds loaded datasets.
type DatasetRegistry struct {
	datasets     map[string]*service.Dataset
	datasetOrder []string
}

// NewDatasetRegistry creates a new dataset registry.
func NewDatasetRegistry() *DatasetRegistry {
	return &DatasetRegistry{
		datasets: make(map[string]*service.Dataset),
	}
}

// Register adds a dataset. Registration order is preserved for listings.
func (r *DatasetRegistry) Register(ds *service.Dataset) {
	if _, ok := r.datasets[ds.ID]; !ok {
		r.datasetOrder = append(r.datasetOrder, ds.ID)
	}
	r.datasets[ds.ID] = ds
}

// Get returns the dataset, or nil if not found.
func (r *DatasetRegistry) Get(datasetID string) *service.Dataset {
	return r.datasets[datasetID]
}

// DatasetIDs returns all dataset IDs in registration order.
func (r *DatasetRegistry) DatasetIDs() []string {
	return r.datasetOrder
}

// Datasets returns dataset info for all registered datasets.
func (r *DatasetRegistry) Datasets() []DatasetInfo {
	infos := make([]DatasetInfo, 0, len(r.datasetOrder))
	for _, id := range r.datasetOrder {
		ds := r.datasets[id]
		nObs, nGenes := ds.Matrix.Dims()
		infos = append(infos, DatasetInfo{
			ID:     id,
			NObs:   nObs,
			NGenes: nGenes,
			HasRaw: ds.Raw != nil,
		})
	}
	return infos
}
