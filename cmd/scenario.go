package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"twin_service/internal/core"
	"twin_service/internal/domain/model"
	"twin_service/internal/domain/repository"
)

// scenarioFlags are shared by predict and chat.
type scenarioFlags struct {
	country  string
	state    string
	district string
	city     string
	horizon  int
	timeout  time.Duration

	factory     string
	solar       bool
	treesPlant  int
	treesCut    int
	greenCover  bool
	waste       bool
	transit     bool
	greenPolicy bool
}

var (
	predictFlags scenarioFlags
	chatFlags    scenarioFlags
	historyLimit int
)

var localitiesCmd = &cobra.Command{
	Use:   "localities",
	Short: "List available localities as a country/state/district/city tree",
	Args:  cobra.NoArgs,
	RunE:  runLocalities,
}

var baselineCmd = &cobra.Command{
	Use:   "baseline <city>",
	Short: "Show the measured baseline of a locality",
	Args:  cobra.ExactArgs(1),
	RunE:  runBaseline,
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict a locality's future under a set of actions",
	Example: `  twin predict --city Chittur --solar --trees-planted 500
  twin predict --city Kochi --factory Chemical --horizon 30`,
	Args: cobra.NoArgs,
	RunE: runPredict,
}

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Ask the city assistant, optionally about a predicted scenario",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

var historyCmd = &cobra.Command{
	Use:   "history <city>",
	Short: "Show recorded scenarios of a locality (requires scenario recording)",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	addScenarioFlags(predictCmd, &predictFlags)
	predictCmd.MarkFlagRequired("city")
	addScenarioFlags(chatCmd, &chatFlags)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of runs to show")
}

func addScenarioFlags(cmd *cobra.Command, f *scenarioFlags) {
	fs := cmd.Flags()
	fs.StringVar(&f.country, "country", "", "Country of the city (optional)")
	fs.StringVar(&f.state, "state", "", "State of the city (optional)")
	fs.StringVar(&f.district, "district", "", "District of the city (optional)")
	fs.StringVar(&f.city, "city", "", "City to simulate")
	fs.IntVar(&f.horizon, "horizon", 0, "Years to simulate, 5-50 (default from config)")
	fs.DurationVar(&f.timeout, "timeout", time.Minute, "How long to wait for the prediction")

	fs.StringVar(&f.factory, "factory", string(model.FactoryNone), "Factory type: None, Textile, Chemical, Electronics, Automobile")
	fs.BoolVar(&f.solar, "solar", false, "Add solar infrastructure")
	fs.IntVar(&f.treesPlant, "trees-planted", 0, "Trees to plant")
	fs.IntVar(&f.treesCut, "trees-cut", 0, "Trees to cut")
	fs.BoolVar(&f.greenCover, "green-cover", false, "Increase green cover")
	fs.BoolVar(&f.waste, "waste", false, "Improve waste management")
	fs.BoolVar(&f.transit, "transit", false, "Expand public transport")
	fs.BoolVar(&f.greenPolicy, "green-policy", false, "Enforce green policy")
}

func (f *scenarioFlags) actions() (model.Actions, error) {
	a := model.Actions{
		FactoryType:            model.FactoryType(f.factory),
		AddSolar:               f.solar,
		TreesPlanted:           f.treesPlant,
		TreesCut:               f.treesCut,
		IncreaseGreenCover:     f.greenCover,
		ImproveWasteManagement: f.waste,
		ExpandPublicTransport:  f.transit,
		EnforceGreenPolicy:     f.greenPolicy,
	}
	return a, a.Validate()
}

func (f *scenarioFlags) path() model.Path {
	return model.Path{Country: f.country, State: f.state, District: f.district, City: f.city}
}

func runLocalities(cmd *cobra.Command, args []string) error {
	svc := newService(nil)
	h, err := svc.Localities(cmd.Context())
	if err != nil {
		return err
	}
	printHierarchy(cmd.OutOrStdout(), h)
	return nil
}

func runBaseline(cmd *cobra.Command, args []string) error {
	svc := newService(nil)
	b, err := svc.Baseline(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printBaseline(cmd.OutOrStdout(), args[0], b)
	return nil
}

func runPredict(cmd *cobra.Command, args []string) error {
	repo, err := openRepository(cmd.Context())
	if err != nil {
		return err
	}
	if repo != nil {
		defer repo.Close()
	}
	svc := newService(repo)

	path, snap, err := settleScenario(cmd.Context(), svc, &predictFlags)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s, %s, %s, %s over %d years\n\n", path.City, path.District, path.State, path.Country, snap.Horizon)
	printPrediction(w, snap)
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	svc := newService(nil)
	chat := svc.NewChatSession()
	message := strings.Join(args, " ")

	var chatCtx model.ChatContext
	if chatFlags.city != "" {
		_, snap, err := settleScenario(cmd.Context(), svc, &chatFlags)
		switch {
		case errors.Is(err, model.ErrInvalidActions), errors.Is(err, core.ErrInvalidHorizon), errors.Is(err, model.ErrUnknownLocality):
			return err
		case err != nil:
			logger.Warn("chatting without a prediction", zap.String("city", chatFlags.city), zap.Error(err))
		}
		chatCtx = core.ChatContextFrom(snap)
	}

	reply, err := chat.Send(cmd.Context(), message, chatCtx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	if !cfg.Storage.RecordScenarios {
		return errors.New("scenario recording is disabled (set RECORD_SCENARIOS=true and POSTGRES_URL)")
	}
	repo, err := openRepository(cmd.Context())
	if err != nil {
		return err
	}
	defer repo.Close()

	runs, err := repository.NewPostgresScenarioRecorder(repo.DB).Recent(cmd.Context(), args[0], historyLimit)
	if err != nil {
		return err
	}
	printHistory(cmd.OutOrStdout(), runs)
	return nil
}

// settleScenario resolves the city, runs one orchestrator until its
// prediction settles and returns the final snapshot.
func settleScenario(ctx context.Context, svc *core.Service, f *scenarioFlags) (model.Path, core.Snapshot, error) {
	actions, err := f.actions()
	if err != nil {
		return model.Path{}, core.Snapshot{}, err
	}
	opts := []core.Option{core.WithActions(actions)}
	if f.horizon != 0 {
		if f.horizon < core.MinHorizon || f.horizon > core.MaxHorizon {
			return model.Path{}, core.Snapshot{}, fmt.Errorf("%w: %d not in [%d, %d]",
				core.ErrInvalidHorizon, f.horizon, core.MinHorizon, core.MaxHorizon)
		}
		opts = append(opts, core.WithHorizon(f.horizon))
	}

	path, err := svc.Resolve(ctx, f.path())
	if err != nil {
		return model.Path{}, core.Snapshot{}, err
	}

	o := svc.NewOrchestrator(opts...)
	defer o.Close()
	if err := o.SelectLocality(path.City); err != nil {
		return path, core.Snapshot{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	snap, err := o.Settle(ctx)
	if err != nil {
		return path, snap, fmt.Errorf("prediction for %s failed: %w", path.City, err)
	}
	return path, snap, nil
}

func printHierarchy(w io.Writer, h model.Hierarchy) {
	for _, country := range h.Countries() {
		fmt.Fprintln(w, country)
		for _, state := range h.States(country) {
			fmt.Fprintf(w, "  %s\n", state)
			for _, district := range h.Districts(country, state) {
				fmt.Fprintf(w, "    %s\n", district)
				for _, city := range h.Cities(country, state, district) {
					fmt.Fprintf(w, "      %s\n", city)
				}
			}
		}
	}
}

func printBaseline(w io.Writer, city string, b *model.Baseline) {
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "LOCALITY\t%s\n", city)
	fmt.Fprintf(tw, "AQI\t%.1f\n", b.AQI)
	fmt.Fprintf(tw, "WATER QUALITY\t%.1f\n", b.WaterQuality)
	fmt.Fprintf(tw, "POLLUTION INDEX\t%.1f\n", b.PollutionIndex)
	fmt.Fprintf(tw, "CARBON BUDGET\t%.1f\n", b.CarbonBudget)
	fmt.Fprintf(tw, "POPULATION\t%d\n", b.Population)
	tw.Flush()
}

func printPrediction(w io.Writer, snap core.Snapshot) {
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "YEAR\tAQI\tWATER\tPOLLUTION\tCARBON\tHEALTH\tRESPIRATORY\tINEQUALITY\tHAPPINESS\n")
	for _, p := range snap.Prediction.Predictions {
		fmt.Fprintf(tw, "%d\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\n",
			p.Year, p.AQI, p.WaterQuality, p.PollutionIndex, p.CarbonBudget,
			p.HealthIndex, p.RespiratoryRisk, p.SocialInequality, p.HappinessIndex)
	}
	tw.Flush()

	if len(snap.Prediction.Explanations) > 0 {
		fmt.Fprintln(w, "\nWhy:")
		for _, e := range snap.Prediction.Explanations {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
	if n := snap.Prediction.TreesToPlantForHappiness; n > 0 {
		fmt.Fprintf(w, "\nPlant %d new trees to restore the ecological balance.\n", n)
	}
	fmt.Fprintf(w, "\nOverall status: %s\n", snap.Status)
}

func printHistory(w io.Writer, runs []repository.RecentScenario) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No recorded scenarios.")
		return
	}
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "RECORDED\tLOCALITY\tHORIZON\tTREES NEEDED\tSTATUS\n")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
			r.RecordedAt.Format(time.RFC3339), r.Locality, r.HorizonYears, r.TreesNeeded, r.OverallStatus)
	}
	tw.Flush()
}
