package tui

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/labelbench/internal/session"
	"github.com/kalambet/labelbench/internal/storage"
)

// ViewMode represents the current view
type ViewMode int

const (
	ViewBrowse          ViewMode = iota // Sample browser
	ViewReject                          // Reject form (issue picker + notes)
	ViewConfirmFinalize                 // Finalize confirmation
	ViewHelp                            // Help overlay
)

// formFocus tracks which half of the reject form receives input
type formFocus int

const (
	focusIssues formFocus = iota
	focusNotes
)

// promptPaneLines is the fixed height of the prompt pane; long prompts are
// truncated here and shown in full by the sample's export record.
const promptPaneLines = 5

// Messages
type viewLoadedMsg struct {
	view session.View
}

type annotationSavedMsg struct {
	err error
}

type finalizedMsg struct {
	count int
	err   error
}

type summaryLoadedMsg struct {
	summary storage.Summary
	err     error
}

type errMsg struct {
	err error
}

// Model is the root Bubble Tea model for the annotation UI
type Model struct {
	// Terminal dimensions
	width  int
	height int
	ready  bool

	// View state
	viewMode ViewMode
	keys     KeyMap

	// Data access
	ctrl        *session.Controller
	store       *storage.Store
	annotatorID string

	// Current position
	view     session.View
	viewport viewport.Model

	// Reject form state
	notesInput textarea.Model
	issueIdx   int
	formFocus  formFocus

	// Finalize confirmation state
	summary storage.Summary

	// Transient notices
	status  string
	errText string
}

// NewModel creates the root model around an open store and a session
// controller positioned on its first sample.
func NewModel(store *storage.Store, ctrl *session.Controller, annotatorID string) Model {
	ta := textarea.New()
	ta.Placeholder = "Why is this response unacceptable?"
	ta.CharLimit = 2000
	ta.SetHeight(4)

	return Model{
		viewMode:    ViewBrowse,
		keys:        DefaultKeyMap(),
		ctrl:        ctrl,
		store:       store,
		annotatorID: annotatorID,
		notesInput:  ta,
		viewport:    viewport.New(80, 20),
	}
}

// Run starts the annotation UI and blocks until the user quits.
func Run(store *storage.Store, ctrl *session.Controller, annotatorID string) error {
	p := tea.NewProgram(NewModel(store, ctrl, annotatorID), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return m.loadViewCmd()
}

// --- Commands ---

func (m Model) loadViewCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		v, err := ctrl.Current()
		if err != nil {
			return errMsg{err: err}
		}
		return viewLoadedMsg{view: v}
	}
}

func (m Model) nextCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		v, err := ctrl.Next()
		if err != nil {
			return errMsg{err: err}
		}
		return viewLoadedMsg{view: v}
	}
}

func (m Model) prevCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		v, err := ctrl.Prev()
		if err != nil {
			return errMsg{err: err}
		}
		return viewLoadedMsg{view: v}
	}
}

func (m Model) jumpCmd(index int) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		v, err := ctrl.JumpTo(index)
		if err != nil {
			return errMsg{err: err}
		}
		return viewLoadedMsg{view: v}
	}
}

func (m Model) acceptCmd(sampleID string) tea.Cmd {
	store := m.store
	annotator := m.annotatorID
	return func() tea.Msg {
		_, err := store.UpsertAnnotation(storage.Annotation{
			SampleID:     sampleID,
			AnnotatorID:  annotator,
			IsAcceptable: true,
		})
		return annotationSavedMsg{err: err}
	}
}

func (m Model) rejectCmd(sampleID, issue, notes string) tea.Cmd {
	store := m.store
	annotator := m.annotatorID
	return func() tea.Msg {
		_, err := store.UpsertAnnotation(storage.Annotation{
			SampleID:     sampleID,
			AnnotatorID:  annotator,
			IsAcceptable: false,
			PrimaryIssue: issue,
			Notes:        notes,
		})
		return annotationSavedMsg{err: err}
	}
}

func (m Model) loadSummaryCmd() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		summary, err := store.Summary()
		if err != nil {
			return summaryLoadedMsg{err: err}
		}
		return summaryLoadedMsg{summary: *summary}
	}
}

func (m Model) finalizeCmd() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		n, err := store.FinalizeAll()
		return finalizedMsg{count: n, err: err}
	}
}

// --- Update ---

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		contentWidth := m.contentWidth()
		responseHeight := m.height - promptPaneLines - 12
		if responseHeight < 3 {
			responseHeight = 3
		}
		m.viewport.Width = contentWidth
		m.viewport.Height = responseHeight
		m.notesInput.SetWidth(contentWidth)
		if !m.view.Empty {
			m.viewport.SetContent(m.renderResponse())
		}
		return m, nil

	case viewLoadedMsg:
		m.view = msg.view
		m.viewport.SetContent(m.renderResponse())
		m.viewport.GotoTop()
		return m, nil

	case annotationSavedMsg:
		if msg.err != nil {
			if errors.Is(msg.err, storage.ErrFinalized) {
				m.errText = "annotation is final and cannot change"
			} else {
				m.errText = msg.err.Error()
			}
			return m, nil
		}
		m.status = "Annotation saved"
		return m, m.loadViewCmd()

	case summaryLoadedMsg:
		if msg.err != nil {
			m.errText = msg.err.Error()
			return m, nil
		}
		m.summary = msg.summary
		m.viewMode = ViewConfirmFinalize
		return m, nil

	case finalizedMsg:
		m.viewMode = ViewBrowse
		if msg.err != nil {
			m.errText = "cannot finalize: " + msg.err.Error()
			return m, m.loadViewCmd()
		}
		m.status = fmt.Sprintf("Finalized %d annotations", msg.count)
		return m, m.loadViewCmd()

	case errMsg:
		m.errText = msg.err.Error()
		return m, nil

	case tea.KeyMsg:
		switch m.viewMode {
		case ViewReject:
			return m.handleRejectKey(msg)
		case ViewConfirmFinalize:
			return m.handleConfirmKey(msg)
		case ViewHelp:
			m.viewMode = ViewBrowse
			return m, nil
		default:
			return m.handleBrowseKey(msg)
		}
	}

	return m, nil
}

func (m Model) handleBrowseKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.viewMode = ViewHelp
		return m, nil

	case key.Matches(msg, m.keys.Next):
		m.clearNotices()
		return m, m.nextCmd()

	case key.Matches(msg, m.keys.Prev):
		m.clearNotices()
		return m, m.prevCmd()

	case key.Matches(msg, m.keys.First):
		m.clearNotices()
		return m, m.jumpCmd(0)

	case key.Matches(msg, m.keys.Last):
		m.clearNotices()
		return m, m.jumpCmd(m.view.Total - 1)

	case key.Matches(msg, m.keys.Accept):
		if m.view.Empty {
			return m, nil
		}
		m.clearNotices()
		return m, m.acceptCmd(m.view.Sample.ID)

	case key.Matches(msg, m.keys.Reject):
		if m.view.Empty {
			return m, nil
		}
		m.clearNotices()
		m.enterRejectForm()
		return m, nil

	case key.Matches(msg, m.keys.ToggleMode):
		m.clearNotices()
		if m.ctrl.Mode() == session.ModeAll {
			m.ctrl.SetMode(session.ModeUnannotated)
		} else {
			m.ctrl.SetMode(session.ModeAll)
		}
		return m, m.loadViewCmd()

	case key.Matches(msg, m.keys.Finalize):
		m.clearNotices()
		return m, m.loadSummaryCmd()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleRejectKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.viewMode = ViewBrowse
		m.errText = ""
		m.notesInput.Blur()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submitRejectForm()

	case key.Matches(msg, m.keys.Switch):
		if m.formFocus == focusIssues {
			m.formFocus = focusNotes
			return m, m.notesInput.Focus()
		}
		m.formFocus = focusIssues
		m.notesInput.Blur()
		return m, nil
	}

	if m.formFocus == focusIssues {
		switch {
		case key.Matches(msg, m.keys.Up):
			if m.issueIdx > 0 {
				m.issueIdx--
			}
		case key.Matches(msg, m.keys.Down):
			if m.issueIdx < len(storage.Issues)-1 {
				m.issueIdx++
			}
		case key.Matches(msg, m.keys.Enter):
			m.formFocus = focusNotes
			return m, m.notesInput.Focus()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.notesInput, cmd = m.notesInput.Update(msg)
	return m, cmd
}

func (m Model) submitRejectForm() (Model, tea.Cmd) {
	notes := strings.TrimSpace(m.notesInput.Value())
	if notes == "" {
		m.errText = "notes are required to reject a sample"
		return m, nil
	}

	issue := storage.Issues[m.issueIdx]
	m.viewMode = ViewBrowse
	m.errText = ""
	m.notesInput.Blur()
	return m, m.rejectCmd(m.view.Sample.ID, issue, notes)
}

func (m Model) handleConfirmKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Yes):
		m.viewMode = ViewBrowse
		return m, m.finalizeCmd()
	case key.Matches(msg, m.keys.No):
		m.viewMode = ViewBrowse
		return m, nil
	}
	return m, nil
}

func (m *Model) clearNotices() {
	m.status = ""
	m.errText = ""
}

func (m *Model) enterRejectForm() {
	m.issueIdx = 0
	m.notesInput.Reset()
	if a := m.view.Annotation; a != nil && !a.IsAcceptable {
		for i, issue := range storage.Issues {
			if issue == a.PrimaryIssue {
				m.issueIdx = i
				break
			}
		}
		m.notesInput.SetValue(a.Notes)
	}
	m.formFocus = focusIssues
	m.notesInput.Blur()
	m.viewMode = ViewReject
}

// --- View ---

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	switch m.viewMode {
	case ViewReject:
		return m.rejectView()
	case ViewConfirmFinalize:
		return m.confirmFinalizeView()
	case ViewHelp:
		return m.helpView()
	default:
		return m.browseView()
	}
}

func (m Model) browseView() string {
	var b strings.Builder

	header := HeaderStyle.Render("labelbench") + " " +
		ModeStyle.Render("["+m.ctrl.Mode().String()+"]")
	if !m.view.Empty {
		header += " " + PositionStyle.Render(fmt.Sprintf("%d/%d", m.view.Index+1, m.view.Total))
	}
	b.WriteString(header)
	b.WriteString("\n\n")

	if m.view.Empty {
		b.WriteString(UnannotatedStyle.Render(" Nothing to review in this mode."))
		b.WriteString("\n\n")
		b.WriteString(m.footer())
		return b.String()
	}

	contentWidth := m.contentWidth()

	prompt := lipgloss.NewStyle().Width(contentWidth).Render(m.view.Sample.Prompt)
	prompt = truncateLines(prompt, promptPaneLines)
	b.WriteString(PaneStyle.Width(contentWidth).Render(PaneTitleStyle.Render("PROMPT") + "\n" + prompt))
	b.WriteString("\n")
	b.WriteString(PaneStyle.Width(contentWidth).Render(PaneTitleStyle.Render("RESPONSE") + "\n" + m.viewport.View()))
	b.WriteString("\n")

	if meta := metadataLine(m.view.Sample.Metadata); meta != "" {
		b.WriteString(meta)
		b.WriteString("\n")
	}
	b.WriteString(" " + annotationLine(m.view.Annotation))
	b.WriteString("\n")

	switch {
	case m.errText != "":
		b.WriteString(ErrorStyle.Render(m.errText))
		b.WriteString("\n")
	case m.status != "":
		b.WriteString(StatusStyle.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString(m.footer())
	return b.String()
}

func (m Model) rejectView() string {
	var b strings.Builder

	b.WriteString(FormTitleStyle.Render("Reject sample " + m.view.Sample.ID))
	b.WriteString("\n\n")

	for i, issue := range storage.Issues {
		cursor := "  "
		line := storage.IssueLabels[issue]
		if i == m.issueIdx {
			cursor = CursorStyle.Render("→ ")
			if m.formFocus == focusIssues {
				line = CursorStyle.Render(line)
			}
		}
		b.WriteString(fmt.Sprintf(" %s%s\n", cursor, line))
	}

	b.WriteString("\n ")
	b.WriteString(PaneTitleStyle.Render("NOTES"))
	b.WriteString("\n")
	b.WriteString(m.notesInput.View())
	b.WriteString("\n")

	if m.errText != "" {
		b.WriteString(ErrorStyle.Render(m.errText))
		b.WriteString("\n")
	}

	b.WriteString(FooterStyle.Render("tab switch focus · ctrl+s submit · esc cancel"))
	return b.String()
}

func (m Model) confirmFinalizeView() string {
	var b strings.Builder

	b.WriteString(FormTitleStyle.Render("Finalize annotations"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf(" Promote %d draft annotations to final. Final annotations cannot change.\n", m.summary.DraftAnnotations))
	if m.summary.Unannotated > 0 {
		b.WriteString(ErrorStyle.Render(fmt.Sprintf("%d samples still have no annotation; finalizing will fail.", m.summary.Unannotated)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(FooterStyle.Render("y confirm · n abort"))
	return b.String()
}

func (m Model) helpView() string {
	var b strings.Builder

	b.WriteString(FormTitleStyle.Render("Key bindings"))
	b.WriteString("\n\n")
	for _, group := range m.keys.FullHelp() {
		for _, binding := range group {
			h := binding.Help()
			b.WriteString(fmt.Sprintf("  %s  %s\n", HelpKeyStyle.Render(fmt.Sprintf("%-10s", h.Key)), HelpDescStyle.Render(h.Desc)))
		}
		b.WriteString("\n")
	}
	b.WriteString(FooterStyle.Render("press any key to return"))
	return b.String()
}

// --- Render helpers ---

func (m Model) contentWidth() int {
	w := m.width - 4
	if w < 20 {
		w = 20
	}
	return w
}

func (m Model) renderResponse() string {
	if m.view.Empty {
		return ""
	}
	if m.viewport.Width <= 0 {
		return m.view.Sample.Response
	}
	return lipgloss.NewStyle().Width(m.viewport.Width).Render(m.view.Sample.Response)
}

func (m Model) footer() string {
	parts := make([]string, 0, len(m.keys.ShortHelp()))
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, HelpKeyStyle.Render(h.Key)+" "+h.Desc)
	}
	return FooterStyle.Render(strings.Join(parts, " · "))
}

func annotationLine(a *storage.Annotation) string {
	if a == nil {
		return UnannotatedStyle.Render("· not annotated")
	}

	suffix := UnannotatedStyle.Render(" (draft)")
	if a.Status == storage.StatusFinal {
		suffix = FinalStyle.Render(" (final)")
	}
	if a.IsAcceptable {
		return AcceptedStyle.Render("✓ accepted") + suffix
	}
	return RejectedStyle.Render("✗ rejected: "+storage.IssueLabels[a.PrimaryIssue]) + suffix
}

func metadataLine(meta map[string]any) string {
	if len(meta) == 0 {
		return ""
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, meta[k])
	}
	return MetadataStyle.Render(strings.Join(parts, "  "))
}

// truncateLines keeps at most max lines, replacing the tail with an ellipsis.
func truncateLines(s string, max int) string {
	if max < 1 {
		max = 1
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= max {
		return s
	}
	return strings.Join(append(lines[:max-1], "…"), "\n")
}
