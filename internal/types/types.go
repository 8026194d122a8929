// Package types provides the shared domain model for the nexarag client.
// This package exists to break import cycles between the api client and the
// graph/chat stores; everything here is a plain data structure mirroring the
// backend's wire shapes.
package types

import (
	"encoding/json"
	"fmt"
)

// NodeLabel classifies a knowledge graph node.
type NodeLabel string

const (
	LabelAuthor           NodeLabel = "Author"
	LabelPaper            NodeLabel = "Paper"
	LabelJournal          NodeLabel = "Journal"
	LabelPublicationVenue NodeLabel = "PublicationVenue"
	LabelDocument         NodeLabel = "Document"
)

// AllLabels lists every known node label, in display order.
func AllLabels() []NodeLabel {
	return []NodeLabel{LabelAuthor, LabelPaper, LabelJournal, LabelPublicationVenue, LabelDocument}
}

// NodeProperties is the closed set of per-label property shapes. The concrete
// type is fully determined by the node's label.
type NodeProperties interface {
	nodeProperties()
	// Name returns the human-readable name for the node (author name, paper
	// title, venue name, ...). May be empty.
	Name() string
}

// AuthorData holds properties of an Author node.
type AuthorData struct {
	CitationCount int    `json:"citation_count"`
	HIndex        int    `json:"h_index"`
	AuthorName    string `json:"name"`
	Affiliations  string `json:"affiliations"`
	AuthorID      string `json:"author_id"`
	URL           string `json:"url"`
	Homepage      string `json:"homepage,omitempty"`
	PaperCount    int    `json:"paper_count"`
}

func (AuthorData) nodeProperties() {}
func (a AuthorData) Name() string  { return a.AuthorName }

// PaperData holds properties of a Paper node.
type PaperData struct {
	InfluentialCitationCount int    `json:"influential_citation_count"`
	CitationCount            int    `json:"citation_count"`
	PublicationTypes         string `json:"publication_types"`
	Year                     int    `json:"year"`
	PublicationDate          string `json:"publication_date"`
	Abstract                 string `json:"abstract,omitempty"`
	ReferenceCount           int    `json:"reference_count"`
	Title                    string `json:"title"`
	PaperID                  string `json:"paper_id"`
}

func (PaperData) nodeProperties() {}
func (p PaperData) Name() string  { return p.Title }

// JournalData holds properties of a Journal node.
type JournalData struct {
	Volume      string `json:"volume,omitempty"`
	Pages       string `json:"pages,omitempty"`
	JournalName string `json:"name"`
}

func (JournalData) nodeProperties() {}
func (j JournalData) Name() string  { return j.JournalName }

// PublicationVenueData holds properties of a PublicationVenue node.
type PublicationVenueData struct {
	AlternateNames string `json:"alternate_names"`
	VenueName      string `json:"name"`
	AlternateURLs  string `json:"alternate_urls"`
	Type           string `json:"type"`
	AlternateISSNs string `json:"alternate_issns,omitempty"`
	URL            string `json:"url"`
	VenueID        string `json:"venue_id"`
}

func (PublicationVenueData) nodeProperties() {}
func (v PublicationVenueData) Name() string  { return v.VenueName }

// DocumentData holds properties of a Document node (an uploaded file).
type DocumentData struct {
	DocumentName string `json:"name"`
	Path         string `json:"path,omitempty"`
	UploadedAt   string `json:"uploaded_at,omitempty"`
}

func (DocumentData) nodeProperties() {}
func (d DocumentData) Name() string  { return d.DocumentName }

// KnowledgeNode is one node of the knowledge graph. Properties' concrete
// type follows Label (tagged union).
type KnowledgeNode struct {
	ID         string
	Label      NodeLabel
	Properties NodeProperties
}

// DisplayName returns the node's name for search and display, falling back
// to "No Name" when the node carries none.
func (n KnowledgeNode) DisplayName() string {
	if n.Properties == nil {
		return "No Name"
	}
	if name := n.Properties.Name(); name != "" {
		return name
	}
	return "No Name"
}

type nodeEnvelope struct {
	ID         string          `json:"id"`
	Label      NodeLabel       `json:"label"`
	Properties json.RawMessage `json:"properties"`
}

// UnmarshalJSON decodes the tagged union, dispatching on label. An unknown
// label is an error; callers decide whether to drop the node or fail.
func (n *KnowledgeNode) UnmarshalJSON(data []byte) error {
	var env nodeEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	var props NodeProperties
	switch env.Label {
	case LabelAuthor:
		props = &AuthorData{}
	case LabelPaper:
		props = &PaperData{}
	case LabelJournal:
		props = &JournalData{}
	case LabelPublicationVenue:
		props = &PublicationVenueData{}
	case LabelDocument:
		props = &DocumentData{}
	default:
		return fmt.Errorf("unknown node label %q", env.Label)
	}

	if len(env.Properties) > 0 {
		if err := json.Unmarshal(env.Properties, props); err != nil {
			return fmt.Errorf("decoding %s properties: %w", env.Label, err)
		}
	}

	n.ID = env.ID
	n.Label = env.Label
	n.Properties = deref(props)
	return nil
}

// MarshalJSON encodes the tagged union back to the wire shape.
func (n KnowledgeNode) MarshalJSON() ([]byte, error) {
	props, err := json.Marshal(n.Properties)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeEnvelope{ID: n.ID, Label: n.Label, Properties: props})
}

// deref converts the pointer used for decoding back into the value form the
// union carries.
func deref(p NodeProperties) NodeProperties {
	switch v := p.(type) {
	case *AuthorData:
		return *v
	case *PaperData:
		return *v
	case *JournalData:
		return *v
	case *PublicationVenueData:
		return *v
	case *DocumentData:
		return *v
	default:
		return p
	}
}

// EdgeType classifies a relationship. The backend may introduce new types;
// they are carried verbatim rather than validated.
type EdgeType string

const (
	EdgeAuthored    EdgeType = "AUTHORED"
	EdgePublishedIn EdgeType = "PUBLISHED_IN"
	EdgePublishedAt EdgeType = "PUBLISHED_AT"
)

// Edge is a directed relationship between two nodes. Endpoints reference
// node IDs; nothing guarantees both are present in the current node set.
type Edge struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Type       EdgeType       `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// KnowledgeGraph is the full node/edge set as served by /graph/get/.
type KnowledgeGraph struct {
	Nodes []KnowledgeNode `json:"nodes"`
	Edges []Edge          `json:"edges"`
}

// ChatMessage is a user-authored message. ChatID stays empty until the
// server assigns one.
type ChatMessage struct {
	Message   string `json:"message"`
	ChatID    string `json:"chatId,omitempty"`
	MessageID string `json:"messageId"`
	Model     string `json:"model"`
	Prefix    string `json:"prefix"`
}

// ChatResponse is one fragment of a streamed assistant response. All
// fragments sharing a ResponseID form one logical response, concatenated in
// arrival order.
type ChatResponse struct {
	ResponseID    string `json:"responseId"`
	UserMessageID string `json:"userMessageId"`
	Message       string `json:"message"`
	ChatID        string `json:"chatId"`
}

// ViewChatMessage is the presentation-facing transcript entry.
type ViewChatMessage struct {
	Text      string
	IsUser    bool
	MessageID string
}

// ModelDetails describes one model available on the backend's Ollama host.
type ModelDetails struct {
	Name       string `json:"name"`
	Model      string `json:"model"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at,omitempty"`
}

// ModelList is the /ollama/list/ response.
type ModelList struct {
	Models []ModelDetails `json:"models"`
}

// PartialAuthor is the trimmed author record in relevance search results.
type PartialAuthor struct {
	Name     string `json:"name"`
	AuthorID string `json:"authorId"`
}

// PaperRelevanceResult is one ranked candidate from /papers/search/relevance.
type PaperRelevanceResult struct {
	Title   string          `json:"title"`
	Year    int             `json:"year"`
	PaperID string          `json:"paperId"`
	Authors []PartialAuthor `json:"authors"`
}

// KnowledgeGraphInfo describes one exported knowledge graph snapshot.
type KnowledgeGraphInfo struct {
	Name        string  `json:"name"`
	FilePath    string  `json:"file_path"`
	CreatedAt   string  `json:"created_at"`
	SizeMB      float64 `json:"size_mb"`
	Description string  `json:"description,omitempty"`
}

// KgOperationResponse acknowledges a knowledge graph lifecycle operation.
type KgOperationResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// CurrentKgInfo describes the knowledge graph currently backing the server.
type CurrentKgInfo struct {
	Database string `json:"database"`
	URI      string `json:"uri"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}

// PlotCreated is the payload of a plot_created push event. The client passes
// it through to the plot view untouched.
type PlotCreated struct {
	Embeddings [][]float64 `json:"embeddings"`
	Labels     []string    `json:"labels"`
	PaperIDs   []string    `json:"paper_ids"`
}
