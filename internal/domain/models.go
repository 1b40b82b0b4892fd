package domain

// Store index names for the two document kinds.
const (
	GameIndex = "boardgames"
	TagIndex  = "tags"
)

// GameRef is a discovery-pass sighting of a game on the ranked browse
// listing, carrying just enough to request full details later.
type GameRef struct {
	ID               int
	Slug             string
	BriefDescription string
}

// EntityLink is a reference to a related BGG entity (category, mechanic,
// family, expansion). Many games may reference the same entity; the name
// must agree for a given id.
type EntityLink struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Game is the fully enriched record for a ranked board game.
type Game struct {
	ID               int          `json:"id"`
	Slug             string       `json:"slug"`
	Name             string       `json:"name"`
	Thumbnail        string       `json:"thumbnail,omitempty"`
	Description      string       `json:"description,omitempty"`
	BriefDescription string       `json:"brief_description,omitempty"`
	ExpectedPlaytime int          `json:"expected_playtime"`
	MinPlayers       int          `json:"min_players"`
	MaxPlayers       int          `json:"max_players"`
	MinPlaytime      int          `json:"min_playtime"`
	MaxPlaytime      int          `json:"max_playtime"`
	MinAge           int          `json:"min_age"`
	Rank             int          `json:"rank"`
	Rating           float64      `json:"rating"`
	NumRatings       int          `json:"num_ratings"`
	Weight           *float64     `json:"weight,omitempty"`
	YearPublished    int          `json:"year_published"`
	Categories       []EntityLink `json:"categories"`
	Mechanics        []EntityLink `json:"mechanics"`
	Families         []EntityLink `json:"families"`
	Expansions       []EntityLink `json:"expansions"`
}

// TagType discriminates the origin of a tag.
type TagType string

const (
	TagMechanic TagType = "mechanic"
	TagCategory TagType = "category"
)

// Tag is a derived categorical label (mechanic or category), indexed
// separately so the full tag list can be enumerated for filtering.
type Tag struct {
	ID   int     `json:"id"`
	Name string  `json:"name"`
	Type TagType `json:"type"`
}

// Document is anything the pipeline can place into a store index.
type Document interface {
	DocID() int
	DocName() string
}

func (g Game) DocID() int      { return g.ID }
func (g Game) DocName() string { return g.Name }

func (t Tag) DocID() int      { return t.ID }
func (t Tag) DocName() string { return t.Name }

// ActionOp distinguishes the two kinds of index mutation.
type ActionOp string

const (
	OpUpsert ActionOp = "upsert"
	OpDelete ActionOp = "delete"
)

// Action is a single index mutation produced by reconciliation. Upserts
// carry the document body; deletes carry only the identifier (and the last
// known name, for logging).
type Action struct {
	Op    ActionOp
	Index string
	ID    string
	Name  string
	Doc   any
}
