// Package workspace holds the client-side session: the ordered OCR result
// entries, the identity of the session they belong to and the markup form
// they are saved in.
package workspace

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ocrdesk/ocrdesk/internal/models"
)

var (
	ErrUnknownEntry      = errors.New("unknown entry")
	ErrNotEditable       = errors.New("entry is not editable")
	ErrCellRange         = errors.New("cell out of range")
	ErrMergeMinimum      = errors.New("select at least 2 tables to merge")
	ErrMergeIncompatible = errors.New("table structure incompatible for auto-merge")
)

// Cell is one th/td.
type Cell struct {
	Text     string
	Header   bool
	ColSpan  int
	RowSpan  int
	Editable bool
}

// Row is one tr.
type Row []Cell

// Table is a parsed table entry. HasBody records whether a tbody section
// exists; merging appends into it.
type Table struct {
	Head    []Row
	Body    []Row
	HasBody bool
}

// Rows returns head rows followed by body rows.
func (t *Table) Rows() []Row {
	rows := make([]Row, 0, len(t.Head)+len(t.Body))
	rows = append(rows, t.Head...)
	return append(rows, t.Body...)
}

func (t *Table) cell(row, col int) (*Cell, error) {
	var r Row
	switch {
	case row < 0:
		return nil, ErrCellRange
	case row < len(t.Head):
		r = t.Head[row]
	case row-len(t.Head) < len(t.Body):
		r = t.Body[row-len(t.Head)]
	default:
		return nil, ErrCellRange
	}
	if col < 0 || col >= len(r) {
		return nil, ErrCellRange
	}
	return &r[col], nil
}

func (t *Table) setEditable() {
	for _, r := range t.Head {
		for i := range r {
			r[i].Editable = true
		}
	}
	for _, r := range t.Body {
		for i := range r {
			r[i].Editable = true
		}
	}
}

func (t *Table) clone() *Table {
	c := &Table{HasBody: t.HasBody}
	for _, r := range t.Head {
		c.Head = append(c.Head, append(Row(nil), r...))
	}
	for _, r := range t.Body {
		c.Body = append(c.Body, append(Row(nil), r...))
	}
	return c
}

// Entry is one OCR result block. Text entries carry Text; table entries
// carry Raw markup while streaming and a parsed Table once finalized.
type Entry struct {
	ID       string
	Title    string
	Kind     models.SessionType
	Text     string
	Raw      string
	Table    *Table
	Editable bool
	Selected bool

	onEdit func()
}

// Listening reports whether an edit listener is attached.
func (e *Entry) Listening() bool {
	return e.onEdit != nil
}

// Content is the display payload: plain text or table markup.
func (e *Entry) Content() string {
	if e.Kind == models.SessionTypeText {
		return e.Text
	}
	if e.Table != nil {
		return renderTableString(e.Table)
	}
	return e.Raw
}

func (e *Entry) clone() Entry {
	c := *e
	if e.Table != nil {
		c.Table = e.Table.clone()
	}
	return c
}

// Snapshot is the saveable view of the workspace at one instant.
type Snapshot struct {
	Epoch   uint64
	ID      string
	Name    string
	Content string
	Empty   bool
}

// Workspace is safe for concurrent use. Edit listeners are invoked without
// the lock held.
type Workspace struct {
	mu            sync.RWMutex
	entries       []*Entry
	id            string
	name          string
	typ           models.SessionType
	epoch         uint64
	uploadVisible bool
}

// New returns an empty table session.
func New() *Workspace {
	w := &Workspace{}
	w.reset(models.SessionTypeTable)
	return w
}

// UntitledName is the title given to a fresh session of typ.
func UntitledName(typ models.SessionType) string {
	return fmt.Sprintf("Untitled Session (%s)", typ.Label())
}

func (w *Workspace) reset(typ models.SessionType) {
	w.entries = nil
	w.id = ""
	w.name = UntitledName(typ)
	w.typ = typ
	w.epoch++
	w.uploadVisible = true
}

// NewSession clears all entries and forgets the session id.
func (w *Workspace) NewSession(typ models.SessionType) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reset(typ)
}

// Load replaces the whole workspace with a saved record. Entries come back
// without listeners; the caller re-attaches them. The session type is
// inferred from the markup.
func (w *Workspace) Load(rec models.SessionRecord) error {
	entries, typ, err := parseMarkup(rec.Content)
	if err != nil {
		return fmt.Errorf("parse session %s: %w", rec.ID, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = entries
	w.id = rec.ID
	w.name = rec.Name
	w.typ = typ
	w.epoch++
	w.uploadVisible = false
	return nil
}

func (w *Workspace) SessionID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.id
}

func (w *Workspace) Name() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.name
}

func (w *Workspace) SetName(name string) {
	w.mu.Lock()
	w.name = name
	w.mu.Unlock()
}

func (w *Workspace) SessionType() models.SessionType {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.typ
}

// Epoch changes every time the workspace switches session.
func (w *Workspace) Epoch() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.epoch
}

// AdoptID records the server-assigned id, unless the workspace has switched
// session since the snapshot at epoch was taken.
func (w *Workspace) AdoptID(epoch uint64, id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.epoch != epoch {
		return false
	}
	w.id = id
	return true
}

func (w *Workspace) UploadVisible() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.uploadVisible
}

func (w *Workspace) SetUploadVisible(v bool) {
	w.mu.Lock()
	w.uploadVisible = v
	w.mu.Unlock()
}

func (w *Workspace) IsEmpty() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entries) == 0
}

// Entries returns copies of all entries in order.
func (w *Workspace) Entries() []Entry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Entry, 0, len(w.entries))
	for _, e := range w.entries {
		out = append(out, e.clone())
	}
	return out
}

// Entry returns a copy of one entry.
func (w *Workspace) Entry(id string) (Entry, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e := w.find(id)
	if e == nil {
		return Entry{}, false
	}
	return e.clone(), true
}

// Snapshot captures everything a save needs.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Snapshot{
		Epoch:   w.epoch,
		ID:      w.id,
		Name:    w.name,
		Content: renderMarkup(w.entries),
		Empty:   len(w.entries) == 0,
	}
}

// Markup renders the workspace in its saved form.
func (w *Workspace) Markup() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return renderMarkup(w.entries)
}

// AddEntry appends an empty entry of the current session type and returns
// its id.
func (w *Workspace) AddEntry(title string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := &Entry{
		ID:    "tbl-" + uuid.NewString()[:13],
		Title: title,
		Kind:  w.typ,
	}
	w.entries = append(w.entries, e)
	return e.ID
}

// SetContent replaces an entry's payload with the accumulated stream text.
func (w *Workspace) SetContent(id, content string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := w.find(id)
	if e == nil {
		return ErrUnknownEntry
	}
	if e.Kind == models.SessionTypeText {
		e.Text = content
		return nil
	}
	e.Raw = content
	e.Table = nil
	return nil
}

// MakeEditable enables editing on an entry and sets its edit listener. Table
// markup is parsed into cells first; markup without a table stays raw and
// read-only.
func (w *Workspace) MakeEditable(id string, onEdit func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := w.find(id)
	if e == nil {
		return ErrUnknownEntry
	}
	makeEditable(e, onEdit)
	return nil
}

// MakeAllEditable does MakeEditable for every entry.
func (w *Workspace) MakeAllEditable(onEdit func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range w.entries {
		makeEditable(e, onEdit)
	}
}

func makeEditable(e *Entry, onEdit func()) {
	e.onEdit = onEdit
	if e.Kind == models.SessionTypeText {
		e.Editable = true
		return
	}
	if e.Table == nil && e.Raw != "" {
		if t := parseTable(e.Raw); t != nil {
			e.Table = t
			e.Raw = ""
		}
	}
	if e.Table != nil {
		e.Table.setEditable()
		e.Editable = true
	}
}

// EditText replaces the text of an editable text entry.
func (w *Workspace) EditText(id, text string) error {
	w.mu.Lock()
	e := w.find(id)
	if e == nil {
		w.mu.Unlock()
		return ErrUnknownEntry
	}
	if e.Kind != models.SessionTypeText || !e.Editable {
		w.mu.Unlock()
		return ErrNotEditable
	}
	e.Text = text
	fire := e.onEdit
	w.mu.Unlock()

	if fire != nil {
		fire()
	}
	return nil
}

// EditCell replaces one cell. row counts head rows first.
func (w *Workspace) EditCell(id string, row, col int, text string) error {
	w.mu.Lock()
	e := w.find(id)
	if e == nil {
		w.mu.Unlock()
		return ErrUnknownEntry
	}
	if e.Table == nil {
		w.mu.Unlock()
		return ErrNotEditable
	}
	c, err := e.Table.cell(row, col)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if !c.Editable {
		w.mu.Unlock()
		return ErrNotEditable
	}
	c.Text = text
	fire := e.onEdit
	w.mu.Unlock()

	if fire != nil {
		fire()
	}
	return nil
}

// Select toggles an entry's merge checkbox.
func (w *Workspace) Select(id string, selected bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := w.find(id)
	if e == nil {
		return ErrUnknownEntry
	}
	e.Selected = selected
	return nil
}

// Remove drops an entry. It reports whether the entry existed.
func (w *Workspace) Remove(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, e := range w.entries {
		if e.ID == id {
			w.entries = append(w.entries[:i], w.entries[i+1:]...)
			return true
		}
	}
	return false
}

// MergeSelected appends the body rows of every selected table, in workspace
// order, to the first selected table and removes the others. Nothing changes
// when an error is returned.
func (w *Workspace) MergeSelected() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var selected []*Entry
	for _, e := range w.entries {
		if e.Selected {
			selected = append(selected, e)
		}
	}
	if len(selected) < 2 {
		return ErrMergeMinimum
	}
	// Raw entries are parsed into locals; nothing is committed until every
	// selected entry has a usable table.
	tables := make([]*Table, len(selected))
	for i, e := range selected {
		tables[i] = e.Table
		if tables[i] == nil && e.Raw != "" {
			tables[i] = parseTable(e.Raw)
		}
		if tables[i] == nil {
			return ErrMergeIncompatible
		}
	}
	if !tables[0].HasBody {
		return ErrMergeIncompatible
	}

	base := selected[0]
	if base.Table == nil {
		base.Table = tables[0]
		base.Raw = ""
	}
	drop := make(map[string]bool, len(selected)-1)
	for i, e := range selected[1:] {
		for _, r := range tables[i+1].Body {
			base.Table.Body = append(base.Table.Body, append(Row(nil), r...))
		}
		drop[e.ID] = true
	}
	kept := w.entries[:0]
	for _, e := range w.entries {
		if !drop[e.ID] {
			kept = append(kept, e)
		}
	}
	w.entries = kept

	if base.onEdit != nil || base.Editable {
		base.Table.setEditable()
		base.Editable = true
	}
	base.Title += " (Merged)"
	base.Selected = false
	return nil
}

func (w *Workspace) find(id string) *Entry {
	for _, e := range w.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}
