// Package engram is a conversational memory engine: it turns dialogue
// into a curated, ranked, decaying corpus of short factual records and
// serves relevance-ranked subsets back on demand.
package engram

import (
	decaypkg "github.com/Protocol-Lattice/engram/src/engram/decay"
	embedpkg "github.com/Protocol-Lattice/engram/src/engram/embed"
	enginepkg "github.com/Protocol-Lattice/engram/src/engram/engine"
	exportpkg "github.com/Protocol-Lattice/engram/src/engram/export"
	extractpkg "github.com/Protocol-Lattice/engram/src/engram/extract"
	llmpkg "github.com/Protocol-Lattice/engram/src/engram/llm"
	"github.com/Protocol-Lattice/engram/src/engram/model"
	storepkg "github.com/Protocol-Lattice/engram/src/engram/store"
)

// Type aliases presenting a flat public API.
type (
	Engine          = enginepkg.Engine
	Hooks           = enginepkg.Hooks
	Events          = enginepkg.Events
	Rejection       = enginepkg.Rejection
	RememberOptions = enginepkg.RememberOptions
	RememberResult  = enginepkg.RememberResult
	StoreOptions    = enginepkg.StoreOptions
	RecallOptions   = enginepkg.RecallOptions
	ForgetOptions   = enginepkg.ForgetOptions
	ForgetResult    = enginepkg.ForgetResult
	MergeOptions    = enginepkg.MergeOptions
	MergeResult     = enginepkg.MergeResult
	MergePair       = enginepkg.MergePair
	Stats           = enginepkg.Stats
	Metrics         = enginepkg.Metrics
	MetricsSnapshot = enginepkg.MetricsSnapshot

	MemoryRecord     = model.MemoryRecord
	HistoryEntry     = model.HistoryEntry
	Candidate        = model.Candidate
	Options          = model.Options
	RetrievalWeights = model.RetrievalWeights
	Error            = model.Error
	ErrorKind        = model.Kind

	Message = extractpkg.Message

	Store          = storepkg.Store
	Filter         = storepkg.Filter
	VectorSearcher = storepkg.VectorSearcher
	InMemoryStore  = storepkg.InMemoryStore
	JSONFileStore  = storepkg.JSONFileStore
	SQLiteStore    = storepkg.SQLiteStore
	PostgresStore  = storepkg.PostgresStore
	MongoStore     = storepkg.MongoStore
	Neo4jStore     = storepkg.Neo4jStore

	Embedder      = embedpkg.Embedder
	DummyEmbedder = embedpkg.DummyEmbedder

	LLM      = llmpkg.LLM
	LLMFunc  = llmpkg.Func
	DummyLLM = llmpkg.DummyLLM

	ExportEnvelope = exportpkg.Envelope
	ForgetMode     = decaypkg.Mode
)

const (
	ForgetGentle     = decaypkg.ModeGentle
	ForgetNormal     = decaypkg.ModeNormal
	ForgetAggressive = decaypkg.ModeAggressive

	ErrNoLLM             = model.KindNoLLM
	ErrExtraction        = model.KindExtraction
	ErrStore             = model.KindStore
	ErrConfig            = model.KindConfig
	ErrDimensionMismatch = model.KindDimensionMismatch
	ErrHookRejected      = model.KindHookRejected
)

var (
	NewEngine      = enginepkg.New
	DefaultOptions = model.DefaultOptions
	IsKind         = model.IsKind

	NewInMemoryStore = storepkg.NewInMemoryStore
	NewJSONFileStore = storepkg.NewJSONFileStore
	NewSQLiteStore   = storepkg.NewSQLiteStore
	NewPostgresStore = storepkg.NewPostgresStore
	NewMongoStore    = storepkg.NewMongoStore
	NewNeo4jStore    = storepkg.NewNeo4jStore

	AutoEmbedder      = embedpkg.AutoEmbedder
	DummyEmbedding    = embedpkg.DummyEmbedding
	NewOpenAIEmbedder = embedpkg.NewOpenAIEmbedder
	NewGeminiEmbedder = embedpkg.NewGeminiEmbedder
	NewOllamaEmbedder = embedpkg.NewOllamaEmbedder
	NewVoyageEmbedder = embedpkg.NewVoyageEmbedder

	AutoLLM         = llmpkg.AutoLLM
	NewOpenAILLM    = llmpkg.NewOpenAILLM
	NewAnthropicLLM = llmpkg.NewAnthropicLLM
	NewGeminiLLM    = llmpkg.NewGeminiLLM
	NewOllamaLLM    = llmpkg.NewOllamaLLM
)
