package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/alecthomas/kingpin/v2"

	"github.com/Diffusion-planet/ip-to-portrait/internal/generation"
	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
	"github.com/Diffusion-planet/ip-to-portrait/internal/session"
	storageio "github.com/Diffusion-planet/ip-to-portrait/internal/storage/io"
	"github.com/Diffusion-planet/ip-to-portrait/internal/ws"
)

type GenerateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	referenceImageID string
	faceImageID      string
	presetPath       string
	prompt           string
	negativePrompt   string
	seed             int64
	steps            int
	guidanceScale    float64
	denoiseStrength  float64
	faceStrength     float64
	adapterMode      string
	maskExpand       float64
	maskBlur         int
	maskPadding      int
	includeHair      bool
	includeNeck      bool
	stopAt           float64
	autoPrompt       bool
	count            int
	parallel         int
	title            string
	format           string
}

// NewGenerateCommand returns the generate command.
func NewGenerateCommand(rootCmd *RootCommand, app *kingpin.Application) *GenerateCommand {
	c := &GenerateCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("generate", "Generate portraits and wait for the results.")
	c.Cmd.Flag("reference-image", "ID of the uploaded reference image.").Required().StringVar(&c.referenceImageID)
	c.Cmd.Flag("face-image", "ID of the uploaded face image.").Required().StringVar(&c.faceImageID)
	c.Cmd.Flag("preset", "Path to a YAML preset with generation parameters, flags override it.").StringVar(&c.presetPath)
	c.Cmd.Flag("prompt", "Generation prompt.").StringVar(&c.prompt)
	c.Cmd.Flag("negative-prompt", "Negative generation prompt.").StringVar(&c.negativePrompt)
	c.Cmd.Flag("seed", "Generation seed, 0 lets the server pick one.").Int64Var(&c.seed)
	c.Cmd.Flag("steps", "Diffusion steps.").IntVar(&c.steps)
	c.Cmd.Flag("guidance", "Guidance scale.").Float64Var(&c.guidanceScale)
	c.Cmd.Flag("denoise", "Denoise strength.").Float64Var(&c.denoiseStrength)
	c.Cmd.Flag("face-strength", "Face adapter strength.").Float64Var(&c.faceStrength)
	c.Cmd.Flag("adapter-mode", "Face adapter mode.").StringVar(&c.adapterMode)
	c.Cmd.Flag("mask-expand", "Mask expansion factor.").Float64Var(&c.maskExpand)
	c.Cmd.Flag("mask-blur", "Mask blur radius.").IntVar(&c.maskBlur)
	c.Cmd.Flag("mask-padding", "Mask padding in pixels.").IntVar(&c.maskPadding)
	c.Cmd.Flag("include-hair", "Include hair in the face mask.").BoolVar(&c.includeHair)
	c.Cmd.Flag("include-neck", "Include neck in the face mask.").BoolVar(&c.includeNeck)
	c.Cmd.Flag("stop-at", "Fraction of steps after which to stop refining.").Float64Var(&c.stopAt)
	c.Cmd.Flag("auto-prompt", "Let the server generate a prompt from the reference.").BoolVar(&c.autoPrompt)
	c.Cmd.Flag("count", "How many portraits to generate.").Default("1").IntVar(&c.count)
	c.Cmd.Flag("parallel", "How many tasks run concurrently.").IntVar(&c.parallel)
	c.Cmd.Flag("title", "Custom history title.").StringVar(&c.title)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c GenerateCommand) Name() string { return c.Cmd.FullCommand() }

func (c GenerateCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger
	p := newPrinter(c.format, c.rootCmd.Stdout)

	req, err := c.startRequest(ctx)
	if err != nil {
		return err
	}

	apiClient, err := generation.NewClient(generation.ClientConfig{
		ServerURL: c.rootCmd.ServerURL,
		ClientID:  c.rootCmd.clientID(),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("could not create generation client: %w", err)
	}

	historySvc, err := newHistoryService(ctx, c.rootCmd, logger)
	if err != nil {
		return err
	}

	// The websocket client and the session reference each other through
	// callbacks, the session is created second and no frame can arrive
	// before it subscribes.
	var svc *session.Service
	done := make(chan struct{})
	var doneOnce sync.Once

	conn, err := ws.NewClient(ws.ClientConfig{
		URL:      c.rootCmd.wsURL(),
		ClientID: c.rootCmd.clientID(),
		Logger:   logger,
		OnOpen:   func() { svc.HandleOpen(ctx) },
		OnFrame:  func(f ws.Frame) { svc.HandleFrame(f) },
	})
	if err != nil {
		return fmt.Errorf("could not create websocket client: %w", err)
	}
	defer conn.Disconnect()

	svc, err = session.NewService(session.ServiceConfig{
		API:        apiClient,
		Connection: conn,
		History:    historySvc,
		Logger:     logger,
		OnBatch: func(b model.Batch) {
			if err := p.PrintBatch(b); err != nil {
				logger.Errorf("Could not print batch progress: %s", err)
			}
			if b.Terminal() {
				doneOnce.Do(func() { close(done) })
			}
		},
		OnPrompt: func(prompt string) {
			if err := p.PrintMessage("Generated prompt: " + prompt); err != nil {
				logger.Errorf("Could not print prompt: %s", err)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("could not create session service: %w", err)
	}

	b, err := svc.Start(ctx, req)
	if err != nil {
		return fmt.Errorf("could not start generation: %w", err)
	}
	logger.Infof("Generating batch %s (%d tasks)", b.ID, len(b.Tasks))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// Best-effort cancel with a fresh context, ours is already gone.
		if err := svc.Cancel(context.Background()); err != nil {
			logger.Warningf("Could not cancel batch: %s", err)
		}
		return ctx.Err()
	}
}

// startRequest merges the preset file (when given) with the flags, flags win.
func (c GenerateCommand) startRequest(ctx context.Context) (session.StartRequest, error) {
	req := session.StartRequest{
		Inputs: model.GenerationInputs{
			ReferenceImageID: c.referenceImageID,
			FaceImageID:      c.faceImageID,
		},
		Params: model.GenerationParams{
			Prompt:          c.prompt,
			NegativePrompt:  c.negativePrompt,
			Seed:            c.seed,
			Steps:           c.steps,
			GuidanceScale:   c.guidanceScale,
			DenoiseStrength: c.denoiseStrength,
			FaceStrength:    c.faceStrength,
			AdapterMode:     c.adapterMode,
			MaskExpand:      c.maskExpand,
			MaskBlur:        c.maskBlur,
			MaskPadding:     c.maskPadding,
			IncludeHair:     c.includeHair,
			IncludeNeck:     c.includeNeck,
			StopAt:          c.stopAt,
			AutoPrompt:      c.autoPrompt,
		},
		Count:    c.count,
		Parallel: c.parallel,
		Title:    c.title,
	}

	if c.presetPath == "" {
		return req, nil
	}

	dir, file := filepath.Split(c.presetPath)
	if dir == "" {
		dir = "."
	}
	repo := storageio.NewPresetYAMLRepository(os.DirFS(dir))
	preset, err := repo.GetPreset(ctx, file)
	if err != nil {
		return session.StartRequest{}, fmt.Errorf("could not load preset: %w", err)
	}

	if c.prompt == "" {
		req.Params.Prompt = preset.Params.Prompt
	}
	if c.negativePrompt == "" {
		req.Params.NegativePrompt = preset.Params.NegativePrompt
	}
	if c.seed == 0 {
		req.Params.Seed = preset.Params.Seed
	}
	if c.steps == 0 {
		req.Params.Steps = preset.Params.Steps
	}
	if c.guidanceScale == 0 {
		req.Params.GuidanceScale = preset.Params.GuidanceScale
	}
	if c.denoiseStrength == 0 {
		req.Params.DenoiseStrength = preset.Params.DenoiseStrength
	}
	if c.faceStrength == 0 {
		req.Params.FaceStrength = preset.Params.FaceStrength
	}
	if c.adapterMode == "" {
		req.Params.AdapterMode = preset.Params.AdapterMode
	}
	if c.maskExpand == 0 {
		req.Params.MaskExpand = preset.Params.MaskExpand
	}
	if c.maskBlur == 0 {
		req.Params.MaskBlur = preset.Params.MaskBlur
	}
	if c.maskPadding == 0 {
		req.Params.MaskPadding = preset.Params.MaskPadding
	}
	if !c.includeHair {
		req.Params.IncludeHair = preset.Params.IncludeHair
	}
	if !c.includeNeck {
		req.Params.IncludeNeck = preset.Params.IncludeNeck
	}
	if c.stopAt == 0 {
		req.Params.StopAt = preset.Params.StopAt
	}
	if !c.autoPrompt {
		req.Params.AutoPrompt = preset.Params.AutoPrompt
	}
	if c.count == 1 && preset.Count > 0 {
		req.Count = preset.Count
	}
	if c.parallel == 0 {
		req.Parallel = preset.Parallel
	}
	if c.title == "" {
		req.Title = preset.Title
	}

	return req, nil
}
