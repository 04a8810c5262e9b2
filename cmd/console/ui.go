package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/reflow/wordwrap"

	"github.com/talecraft/turnengine/internal/turn"
	"github.com/talecraft/turnengine/pkg/contract"
	"github.com/talecraft/turnengine/pkg/state"
)

const (
	AgentName       = "Narrator"
	PlaceHolderText = "What do you do?"
)

type transcriptEntry struct {
	role string // "user", "narrator", "error", "info"
	text string
}

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	client       *http.Client
	gameState    *state.GameState
	entrySlug    string
	transcript   []transcriptEntry
	choices      []contract.Choice
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	loading      bool

	// Scenario selection state
	showScenarioModal bool
	scenarios         []string
	selectedScenario  int
	loadingScenarios  bool

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type turnResultMsg struct {
	result *turn.Result
	err    error
}

type scenariosLoadedMsg struct {
	scenarios []string
	err       error
}

type gameStateCreatedMsg struct {
	gameState *state.GameState
	entrySlug string
	err       error
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().Padding(2, 0, 1, 3)
	metaPanelStyle = lipgloss.NewStyle().Padding(2, 2, 0, 0)

	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	narratorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	userStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	choiceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	loadingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	// dim chrome: prompts, separators
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	separatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))
	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
	modalItemStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)
)

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:            cfg,
		client:            client,
		textarea:          ta,
		chatViewport:      chatVp,
		metaViewport:      metaVp,
		showScenarioModal: true,
		loadingScenarios:  true,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return m.loadScenarios()
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showScenarioModal {
		return m.updateScenarioModal(msg)
	}
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.textarea, tiCmd = m.textarea.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(tiCmd, vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.writeChatContent()
		if m.gameState != nil {
			m.metaViewport.SetContent(m.writeMetadata())
		}
		m.ready = true

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyCtrlG:
			if m.gameState != nil {
				if err := clipboard.WriteAll(m.gameState.ID.String()); err == nil {
					m.transcript = append(m.transcript, transcriptEntry{role: "info", text: "Game ID copied to clipboard."})
					m.writeChatContent()
				}
			}
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}

			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}

			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}

			// A bare number picks the matching choice from the last turn.
			kind := "say"
			if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(m.choices) {
				input = m.choices[n-1].Label
				kind = "choice"
			}

			m.textarea.Reset()
			m.loading = true
			m.progressTick = 0
			m.choices = nil
			m.transcript = append(m.transcript, transcriptEntry{role: "user", text: input})
			m.writeChatContent()

			return m, tea.Batch(m.sendTurn(kind, input), progressTick())
		}

	case turnResultMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.transcript = append(m.transcript, transcriptEntry{role: "error", text: msg.err.Error()})
		} else {
			m.transcript = append(m.transcript, transcriptEntry{role: "narrator", text: msg.result.Narration})
			m.choices = msg.result.Choices
			if msg.result.GameState != nil {
				m.gameState = msg.result.GameState
				m.metaViewport.SetContent(m.writeMetadata())
			}
		}
		m.writeChatContent()
		m.chatViewport.GotoBottom()
		return m, nil

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

func (m *ConsoleUI) resize() {
	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	m.chatViewport.Width = chatWidth - 2
	m.chatViewport.Height = m.height - 7
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(chatWidth - 4)
}

// writeChatContent rebuilds the transcript view for the current width.
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6
	if chatWidth < 20 {
		chatWidth = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("TURN ENGINE") + "\n\n")
	content.WriteString("Type your actions below, or a choice number, and press Enter.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", chatWidth-6)) + "\n\n")

	for _, entry := range m.transcript {
		switch entry.role {
		case "user":
			content.WriteString(userStyle.Render("You: ") + wordwrap.String(entry.text, chatWidth-6) + "\n\n")
		case "narrator":
			content.WriteString(narratorStyle.Render(AgentName+": ") + wordwrap.String(entry.text, chatWidth-len(AgentName)-2) + "\n\n")
		case "error":
			content.WriteString(errorStyle.Render("Error: "+entry.text) + "\n\n")
		case "info":
			content.WriteString(promptStyle.Render(entry.text) + "\n\n")
		}
	}

	if len(m.choices) > 0 && !m.loading {
		for i, c := range m.choices {
			content.WriteString(choiceStyle.Render(fmt.Sprintf("%d. %s", i+1, c.Label)) + "\n")
		}
		content.WriteString("\n")
	}

	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func (m *ConsoleUI) writeMetadata() string {
	gs := m.gameState
	var content strings.Builder
	content.WriteString(titleStyle.Render("GAME STATE") + "\n\n")

	content.WriteString("Game ID:\n")
	content.WriteString(gs.ID.String()[:8] + "...\n\n")

	content.WriteString("Scene:\n")
	content.WriteString(gs.Scene + "\n\n")

	content.WriteString(fmt.Sprintf("Turn %d — %s (%d ticks)\n\n", gs.TurnCounter, gs.TimeBand, gs.Ticks))

	if len(gs.Flags) > 0 {
		content.WriteString("Flags:\n")
		for k, v := range gs.Flags {
			content.WriteString(fmt.Sprintf("• %s: %v\n", k, v))
		}
		content.WriteString("\n")
	}

	if len(gs.Resources) > 0 {
		content.WriteString("Resources:\n")
		for k, v := range gs.Resources {
			content.WriteString(fmt.Sprintf("• %s: %g\n", k, v))
		}
		content.WriteString("\n")
	}

	if rel, ok := gs.Slices[state.RelationshipSlice]; ok && len(rel) > 0 {
		content.WriteString("Relationships:\n")
		for npc, stats := range rel {
			if sm, ok := stats.(map[string]interface{}); ok {
				trust, _ := sm[state.StatTrust].(float64)
				content.WriteString(fmt.Sprintf("• %s: trust %g\n", npc, trust))
			}
		}
		content.WriteString("\n")
	}

	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Ctrl+G: Copy game ID\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• /help: Help\n")

	return content.String()
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "/help":
		m.transcript = append(m.transcript, transcriptEntry{role: "info", text: strings.TrimSpace(`
Commands:
/help - Show this help
/state - Show full scene and objective info
Ctrl+G - Copy game ID to clipboard
Ctrl+C - Quit

Type your actions and press Enter, or type a choice number.`)})
	case "/state":
		var sb strings.Builder
		gs := m.gameState
		sb.WriteString(fmt.Sprintf("Scene: %s | Time: %s | Turn: %d", gs.Scene, gs.TimeBand, gs.TurnCounter))
		if len(gs.Objectives) > 0 {
			sb.WriteString("\nObjectives:")
			for id, status := range gs.Objectives {
				sb.WriteString(fmt.Sprintf("\n• %s: %s", id, status))
			}
		}
		m.transcript = append(m.transcript, transcriptEntry{role: "info", text: sb.String()})
	}

	m.textarea.Reset()
	m.writeChatContent()
	return m, nil
}

func (m ConsoleUI) sendTurn(kind, input string) tea.Cmd {
	gs := m.gameState
	entry := m.entrySlug
	return func() tea.Msg {
		req := &turn.Request{
			GameStateID:    gs.ID,
			IdempotencyKey: uuid.New().String(),
			WorldID:        gs.WorldID,
			RulesetID:      gs.RulesetID,
			ScenarioID:     gs.ScenarioID,
			EntrySlug:      entry,
			ModuleIDs:      gs.ModuleIDs,
			NPCIDs:         gs.NPCIDs,
			InputKind:      kind,
			InputText:      input,
		}
		result, err := submitTurn(m.client, m.config.APIBaseURL, req)
		return turnResultMsg{result, err}
	}
}

func (m ConsoleUI) loadScenarios() tea.Cmd {
	return func() tea.Msg {
		scenarios, err := listScenarios(m.client, m.config.APIBaseURL)
		return scenariosLoadedMsg{scenarios, err}
	}
}

func (m ConsoleUI) createGame(scenarioID string) tea.Cmd {
	cfg := m.config
	return func() tea.Msg {
		scen, err := getScenario(m.client, cfg.APIBaseURL, scenarioID)
		if err != nil {
			return gameStateCreatedMsg{nil, "", err}
		}
		gs, err := createGameState(m.client, cfg.APIBaseURL, CreateGameStateRequest{
			StoryID:    cfg.StoryID,
			WorldID:    cfg.WorldID,
			RulesetID:  cfg.RulesetID,
			ScenarioID: scenarioID,
		})
		return gameStateCreatedMsg{gs, scen.Graph.Entry(), err}
	}
}

func (m ConsoleUI) updateScenarioModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case scenariosLoadedMsg:
		m.loadingScenarios = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.scenarios = msg.scenarios
		}

	case gameStateCreatedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.gameState = msg.gameState
			m.entrySlug = msg.entrySlug
			m.showScenarioModal = false
			if m.width > 0 && m.height > 0 {
				m.resize()
			}
			m.writeChatContent()
			m.metaViewport.SetContent(m.writeMetadata())
			m.textarea.Focus()
			m.ready = true
		}
		return m, textarea.Blink

	case tea.KeyMsg:
		if m.loadingScenarios || m.err != nil {
			if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyUp:
			if m.selectedScenario > 0 {
				m.selectedScenario--
			}
		case tea.KeyDown:
			if m.selectedScenario < len(m.scenarios)-1 {
				m.selectedScenario++
			}
		case tea.KeyEnter:
			if len(m.scenarios) > 0 {
				m.loading = true
				return m, m.createGame(m.scenarios[m.selectedScenario])
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				if !m.showScenarioModal {
					m.textarea.Focus()
					return m, textarea.Blink
				}
				return m, nil
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	body := modalTitleStyle.Render("Quit Game?") + "\n\n" +
		"Leave the story where it stands? Your game state is saved." + "\n\n" +
		promptStyle.Render("Y to quit, N to keep playing")

	modal := modalStyle.Width(50).Render(body)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderScenarioModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	switch {
	case m.loadingScenarios:
		content.WriteString(modalTitleStyle.Render("Loading Scenarios..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Please wait while we fetch available scenarios..."))
	case m.err != nil:
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(fmt.Sprintf("Failed to load scenarios: %v", m.err)))
		content.WriteString("\n\n")
		content.WriteString("Press Ctrl+C to exit")
	case m.loading:
		content.WriteString(modalTitleStyle.Render("Creating Game..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Setting up your adventure..."))
	default:
		content.WriteString(modalTitleStyle.Render("Select a Scenario"))
		content.WriteString("\n\n")

		for i, scenarioID := range m.scenarios {
			if i == m.selectedScenario {
				content.WriteString(modalSelectedItemStyle.Render(fmt.Sprintf("▶ %s", scenarioID)))
			} else {
				content.WriteString(modalItemStyle.Render(fmt.Sprintf("  %s", scenarioID)))
			}
			content.WriteString("\n")
		}

		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showScenarioModal {
		return m.renderScenarioModal()
	}
	if m.showQuitModal {
		return m.renderQuitModal()
	}
	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", chatWidth-4)),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar draws the animated waiting indicator shown while a
// turn is in flight.
func (m ConsoleUI) renderProgressBar() string {
	width := m.chatViewport.Width - 6
	switch {
	case width < 10:
		width = 10
	case width > 80:
		width = 80
	}

	const frames = 40
	frame := m.progressTick % frames
	filled := frame * width / frames

	bar := strings.Repeat("█", filled)
	if frame%4 < 2 {
		bar += "▓"
	} else {
		bar += "░"
	}
	if pad := width - len([]rune(bar)); pad > 0 {
		bar += strings.Repeat("░", pad)
	}
	return separatorStyle.Render(bar)
}

func progressTick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
