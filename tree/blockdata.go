// Package tree implements a CRDT tree of document blocks (paragraphs,
// headings, tables, images, and the rest of the block taxonomy). Children
// are ordered by (after_sibling, OpId) with the same descending-OpId-per-
// predecessor rule as rga, nodes are never physically removed (tombstoned
// instead), and moving a block relocates the existing node under its new
// parent, keeping its OpId and NodeId.
package tree

// BlockKind tags which variant of BlockData a node carries.
type BlockKind int

const (
	Document BlockKind = iota
	Paragraph
	Section
	Table
	TableRow
	TableCell
	Image
	ListItem
	HeaderFooter
	TextBox
	Shape
	Heading
	BlockQuote
	CodeBlock
	HorizontalRule
	Custom
)

func (k BlockKind) String() string {
	switch k {
	case Document:
		return "Document"
	case Paragraph:
		return "Paragraph"
	case Section:
		return "Section"
	case Table:
		return "Table"
	case TableRow:
		return "TableRow"
	case TableCell:
		return "TableCell"
	case Image:
		return "Image"
	case ListItem:
		return "ListItem"
	case HeaderFooter:
		return "HeaderFooter"
	case TextBox:
		return "TextBox"
	case Shape:
		return "Shape"
	case Heading:
		return "Heading"
	case BlockQuote:
		return "BlockQuote"
	case CodeBlock:
		return "CodeBlock"
	case HorizontalRule:
		return "HorizontalRule"
	case Custom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// HeaderFooterKind distinguishes the six header/footer placements a
// HeaderFooter block can occupy.
type HeaderFooterKind int

const (
	DefaultHeader HeaderFooterKind = iota
	FirstPageHeader
	EvenPageHeader
	DefaultFooter
	FirstPageFooter
	EvenPageFooter
)

// BlockData is a flat tagged union over every block variant a document
// can contain. Only the fields relevant to Kind are meaningful; the
// others are zero, the same flat-struct approach Operation{Kind OpKind,
// ...} uses for a generic patch operation, applied here to a block's
// payload instead.
type BlockData struct {
	Kind BlockKind

	// Paragraph, Heading
	Style *string

	// Section, Table, TableRow, TableCell, Shape: arbitrary properties,
	// carried as a parsed JSON-ish value rather than a typed struct, since
	// these variants' property sets are open-ended.
	Properties any

	// Table
	Rows, Cols int

	// TableRow
	RowIndex int

	// TableCell
	CellRow, CellCol int

	// Image
	Src           string
	Alt           *string
	Width, Height *int64

	// ListItem
	ListID string
	Level  uint8

	// HeaderFooter
	HFType    HeaderFooterKind
	SectionID *string

	// TextBox
	Bounds any

	// Shape
	ShapeType string

	// Heading
	HeadingLevel uint8

	// CodeBlock
	Language *string

	// Custom
	BlockType string
	Data      any
}

// NewDocument returns the BlockData for the tree root.
func NewDocument() BlockData { return BlockData{Kind: Document} }

// NewParagraph returns a Paragraph block, optionally styled.
func NewParagraph(style *string) BlockData {
	return BlockData{Kind: Paragraph, Style: style}
}

// NewHeading returns a Heading block at the given level (1-6).
func NewHeading(level uint8, style *string) BlockData {
	return BlockData{Kind: Heading, HeadingLevel: level, Style: style}
}
