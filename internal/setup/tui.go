package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/vadiminshakov/skinwatch/config"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"gopkg.in/yaml.v3"
)

// ConfigFile is where the wizard writes its result.
const ConfigFile = "config.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// answers collects the wizard inputs before they become a config.
type answers struct {
	dataDir            string
	listenAddr         string
	telegramToken      string
	subscribers        string
	sources            []string
	portfolioThreshold string
	defaultThreshold   string
	fxFallbackRate     string
}

func defaultAnswers() answers {
	return answers{
		dataDir:            "./wal",
		listenAddr:         ":8080",
		sources:            []string{config.SourceMarketCSGO, config.SourceSkinport, config.SourceSteam},
		portfolioThreshold: "2",
		defaultThreshold:   "5",
		fxFallbackRate:     "41.5",
	}
}

func step(title string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("SKINWATCH CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(title))
}

// RunTUI launches the terminal configuration wizard and writes ConfigFile.
// It returns the path of the written file.
func RunTUI() (string, error) {
	a := defaultAnswers()
	var confirm bool

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("SKINWATCH CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Track your CS2 inventory across markets.\n"))

	fmt.Println(stepStyle.Render("STEP 1: STORAGE AND HTTP"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Data directory").
				Description("Snapshots, price history and state are kept here").
				Value(&a.dataDir),
			huh.NewInput().
				Title("HTTP listen address").
				Value(&a.listenAddr),
		),
	).Run()
	if err != nil {
		return "", err
	}

	step("STEP 2: TELEGRAM")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Bot token").
				Description("Leave empty to log notifications instead").
				Value(&a.telegramToken).
				EchoMode(huh.EchoModePassword),
			huh.NewInput().
				Title("Portfolio subscribers").
				Description("Comma separated chat ids").
				Value(&a.subscribers).
				Validate(func(s string) error {
					_, err := parseSubscribers(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return "", err
	}

	step("STEP 3: PRICE SOURCES")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Enabled sources").
				Description("Steam prices are shown for reference only").
				Options(
					huh.NewOption("Market CSGO", config.SourceMarketCSGO).Selected(true),
					huh.NewOption("Skinport", config.SourceSkinport).Selected(true),
					huh.NewOption("Steam Community Market", config.SourceSteam).Selected(true),
				).
				Value(&a.sources).
				Validate(func(s []string) error {
					for _, name := range s {
						if name != config.SourceSteam {
							return nil
						}
					}
					return fmt.Errorf("enable at least one of Market CSGO or Skinport")
				}),
		),
	).Run()
	if err != nil {
		return "", err
	}

	step("STEP 4: THRESHOLDS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Portfolio change %").
				Description("Notify subscribers when the total moves this much").
				Value(&a.portfolioThreshold).
				Validate(validateThreshold),
			huh.NewInput().
				Title("Default item change %").
				Description("Used until an owner picks their own").
				Value(&a.defaultThreshold).
				Validate(validateThreshold),
			huh.NewInput().
				Title("Fallback USD rate").
				Description("Used when the exchange rate cannot be fetched").
				Value(&a.fxFallbackRate).
				Validate(func(s string) error {
					_, err := domain.ParsePrice(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return "", err
	}

	step("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Data: %s\nHTTP: %s\nTelegram: %t\nSources: %s\nPortfolio threshold: %s%%\nItem threshold: %s%%\n",
		a.dataDir, a.listenAddr, a.telegramToken != "", strings.Join(a.sources, ", "),
		a.portfolioThreshold, a.defaultThreshold,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return "", err
	}
	if !confirm {
		return "", fmt.Errorf("setup cancelled by user")
	}

	cfgTmp, err := a.toConfig()
	if err != nil {
		return "", err
	}
	if err := writeConfig(ConfigFile, cfgTmp); err != nil {
		return "", err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting skinwatch...", ConfigFile)))
	time.Sleep(1500 * time.Millisecond)
	return ConfigFile, nil
}

func (a answers) toConfig() (config.ConfigTmp, error) {
	subscribers, err := parseSubscribers(a.subscribers)
	if err != nil {
		return config.ConfigTmp{}, err
	}

	enabled := make(map[string]bool, len(a.sources))
	for _, s := range a.sources {
		enabled[s] = true
	}
	sources := config.DefaultSources()
	for i := range sources {
		sources[i].Enabled = enabled[sources[i].Name]
	}

	return config.ConfigTmp{
		DataDir:               a.dataDir,
		ListenAddr:            a.listenAddr,
		TelegramToken:         a.telegramToken,
		Subscribers:           subscribers,
		FXFallbackRateStr:     a.fxFallbackRate,
		PortfolioThresholdStr: a.portfolioThreshold,
		DefaultThresholdStr:   a.defaultThreshold,
		Sources:               sources,
	}, nil
}

func writeConfig(path string, cfgTmp config.ConfigTmp) error {
	data, err := yaml.Marshal(cfgTmp)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

func validateThreshold(s string) error {
	_, err := domain.ParseThreshold(s)
	return err
}

func parseSubscribers(s string) ([]int64, error) {
	var out []int64
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q", field)
		}
		out = append(out, id)
	}
	return out, nil
}
