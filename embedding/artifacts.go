package embedding

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hubenschmidt/go-reviewrag/core"
	"github.com/hubenschmidt/go-reviewrag/vector"
)

// Artifact file names within a snapshot directory.
const (
	VectorsFile  = "vectors.bin"
	MetadataFile = "metadata.json"
	IndexFile    = "index.bin"
	ManifestFile = "manifest.yaml"
)

const (
	vectorsMagic   = "RVEC"
	vectorsVersion = 1
)

// Manifest describes a persisted snapshot. The loader refuses any artifact
// set whose files disagree with it.
type Manifest struct {
	BuildID    string    `yaml:"build_id"`
	Model      string    `yaml:"model"`
	Dimension  int       `yaml:"dimension"`
	Rows       int       `yaml:"rows"`
	IndexType  string    `yaml:"index_type"`
	Normalized bool      `yaml:"normalized"`
	Skipped    int       `yaml:"skipped"`
	CreatedAt  time.Time `yaml:"created_at"`
}

// Save writes the snapshot's artifacts into dir, creating it if needed.
func Save(dir string, snap *Snapshot) error {
	const op = "embedding.Save"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.E(core.KindConfig, op, err)
	}

	if err := writeVectors(filepath.Join(dir, VectorsFile), snap.Vectors, snap.Dimension); err != nil {
		return core.E(core.KindConfig, op, err)
	}

	metaBytes, err := json.MarshalIndent(snap.Metadata, "", "  ")
	if err != nil {
		return core.E(core.KindConfig, op, err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetadataFile), metaBytes, 0o644); err != nil {
		return core.E(core.KindConfig, op, err)
	}

	if h, ok := snap.Index.(*vector.HNSW); ok {
		f, err := os.Create(filepath.Join(dir, IndexFile))
		if err != nil {
			return core.E(core.KindConfig, op, err)
		}
		if err := h.Export(f); err != nil {
			f.Close()
			return core.E(core.KindConfig, op, fmt.Errorf("export index: %w", err))
		}
		if err := f.Close(); err != nil {
			return core.E(core.KindConfig, op, err)
		}
	}

	manifest := Manifest{
		BuildID:    snap.BuildID,
		Model:      snap.Model,
		Dimension:  snap.Dimension,
		Rows:       len(snap.Vectors),
		IndexType:  string(snap.IndexType),
		Normalized: true,
		Skipped:    snap.Skipped,
		CreatedAt:  snap.CreatedAt,
	}
	manifestBytes, err := yaml.Marshal(manifest)
	if err != nil {
		return core.E(core.KindConfig, op, err)
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), manifestBytes, 0o644)
}

// LoadOptions adjusts artifact loading.
type LoadOptions struct {
	// ExpectModel, when set, must match the manifest's model identity. This
	// catches serving a corpus built with a different embedder.
	ExpectModel string
	HNSW        vector.HNSWOptions
	DSN         string // pgvector index only
}

// Load reads a snapshot from dir. Row-count or identity mismatches between
// the manifest, vectors, and metadata are configuration errors.
func Load(dir string, opts LoadOptions) (*Snapshot, error) {
	const op = "embedding.Load"

	manifestBytes, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, core.E(core.KindConfig, op, err)
	}
	var manifest Manifest
	if err := yaml.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, core.E(core.KindConfig, op, fmt.Errorf("parse manifest: %w", err))
	}
	if opts.ExpectModel != "" && manifest.Model != opts.ExpectModel {
		return nil, core.Errorf(core.KindConfig, op,
			"manifest model %q does not match configured model %q", manifest.Model, opts.ExpectModel)
	}

	vectors, dimension, err := readVectors(filepath.Join(dir, VectorsFile))
	if err != nil {
		return nil, core.E(core.KindConfig, op, err)
	}
	if dimension != manifest.Dimension {
		return nil, core.Errorf(core.KindConfig, op,
			"vectors dimension %d does not match manifest dimension %d", dimension, manifest.Dimension)
	}
	if len(vectors) != manifest.Rows {
		return nil, core.Errorf(core.KindConfig, op,
			"vectors file has %d rows, manifest says %d", len(vectors), manifest.Rows)
	}

	metaBytes, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, core.E(core.KindConfig, op, err)
	}
	var metadata []core.Metadata
	if err := json.Unmarshal(metaBytes, &metadata); err != nil {
		return nil, core.E(core.KindConfig, op, fmt.Errorf("parse metadata: %w", err))
	}
	if len(metadata) != manifest.Rows {
		return nil, core.Errorf(core.KindConfig, op,
			"metadata has %d rows, manifest says %d", len(metadata), manifest.Rows)
	}

	var index vector.Index
	switch vector.Type(manifest.IndexType) {
	case vector.TypeFlat:
		flat := vector.NewFlat(dimension)
		if err := flat.Add(vectors...); err != nil {
			return nil, core.E(core.KindConfig, op, err)
		}
		index = flat
	case vector.TypeHNSW:
		f, err := os.Open(filepath.Join(dir, IndexFile))
		if err != nil {
			return nil, core.E(core.KindConfig, op, err)
		}
		index, err = vector.ImportHNSW(f, vectors, dimension, opts.HNSW)
		f.Close()
		if err != nil {
			return nil, core.E(core.KindConfig, op, err)
		}
	case vector.TypePgVector:
		// Search runs against the database, but vectors and metadata are
		// still loaded into the snapshot: the recommender scans them
		// directly for aggregation and centroids.
		if opts.DSN == "" {
			return nil, core.Errorf(core.KindConfig, op, "pgvector index requires a dsn")
		}
		pg, err := vector.NewPgVector(opts.DSN, dimension)
		if err != nil {
			return nil, core.E(core.KindConfig, op, err)
		}
		if pg.Len() != manifest.Rows {
			pg.Close()
			return nil, core.Errorf(core.KindConfig, op,
				"pgvector table has %d rows, manifest says %d", pg.Len(), manifest.Rows)
		}
		index = pg
	default:
		return nil, core.Errorf(core.KindConfig, op, "unsupported index type %q", manifest.IndexType)
	}

	return &Snapshot{
		BuildID:   manifest.BuildID,
		Model:     manifest.Model,
		Dimension: dimension,
		IndexType: vector.Type(manifest.IndexType),
		Index:     index,
		Vectors:   vectors,
		Metadata:  metadata,
		Skipped:   manifest.Skipped,
		CreatedAt: manifest.CreatedAt,
	}, nil
}

// writeVectors stores vectors as a small header followed by row-major
// little-endian float32 values.
func writeVectors(path string, vectors [][]float32, dimension int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write([]byte(vectorsMagic)); err != nil {
		return err
	}
	header := []uint32{vectorsVersion, uint32(dimension), uint32(len(vectors))}
	if err := binary.Write(f, binary.LittleEndian, header); err != nil {
		return err
	}
	for _, v := range vectors {
		if err := binary.Write(f, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readVectors(path string) ([][]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := f.Read(magic); err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	if string(magic) != vectorsMagic {
		return nil, 0, fmt.Errorf("not a vectors file (magic %q)", magic)
	}

	header := make([]uint32, 3)
	if err := binary.Read(f, binary.LittleEndian, header); err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	if header[0] != vectorsVersion {
		return nil, 0, fmt.Errorf("unsupported vectors file version %d", header[0])
	}
	dimension, rows := int(header[1]), int(header[2])

	vectors := make([][]float32, rows)
	for i := range vectors {
		v := make([]float32, dimension)
		if err := binary.Read(f, binary.LittleEndian, v); err != nil {
			return nil, 0, fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, dimension, nil
}
