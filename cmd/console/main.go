package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/joho/godotenv"

	"github.com/Brownie44l1/describer/internal/config"
	"github.com/Brownie44l1/describer/internal/describe"
	"github.com/Brownie44l1/describer/internal/imageproc"
	"github.com/Brownie44l1/describer/internal/logging"
	"github.com/Brownie44l1/describer/internal/model"
	"github.com/Brownie44l1/describer/internal/tokenizer"
)

var errQuit = errors.New("quit")

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "Path to YAML config")
	flag.Parse()

	err := mainImpl(*configPath)
	if errors.Is(err, model.ErrRuntimeUnavailable) {
		fmt.Fprintf(os.Stderr, "Error: %v. Install ONNX Runtime or set ONNXRUNTIME_LIB to its shared library.\n", err)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel)

	runtime, err := model.InitRuntime(cfg.OnnxLibraryPath)
	if err != nil {
		return err
	}
	defer runtime.Close()

	classifierModel, err := model.NewClassifier(cfg.Classifier.ModelPath, cfg.Classifier.MetadataPath)
	if err != nil {
		return err
	}
	defer classifierModel.Close()

	languageModel, err := model.NewLanguageModel(model.LanguageModelOptions{
		ModelPath:         cfg.Generator.ModelPath,
		InputIDsName:      cfg.Generator.InputIDsName,
		AttentionMaskName: cfg.Generator.AttentionMaskName,
		PositionIDsName:   cfg.Generator.PositionIDsName,
		LogitsName:        cfg.Generator.LogitsName,
		VocabSize:         cfg.Generator.VocabSize,
	})
	if err != nil {
		return err
	}
	defer languageModel.Close()

	bpe, err := tokenizer.New(cfg.Generator.Encoding)
	if err != nil {
		return err
	}

	pipeline := describe.NewPipeline(
		&imageproc.Preprocessor{Width: classifierModel.Metadata.ImageSize, Height: classifierModel.Metadata.ImageSize},
		describe.NewClassifier(classifierModel),
		describe.NewGenerator(bpe, logging.NewLanguageModelDecorator(languageModel, logger), cfg.Generator.GeneratorOptions()),
		logger,
	)

	rl, err := readline.New("image path> ")
	if err != nil {
		return err
	}
	defer func() {
		_ = rl.Close()
	}()

	fmt.Println("Enter an image path (.jpg, .jpeg, .png), or :q to quit.")
	for {
		err := describeOnce(rl, pipeline)
		if errors.Is(err, errQuit) || errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
			return nil
		}
		if err != nil {
			fmt.Println("Error:", err)
		}
	}
}

func describeOnce(rl *readline.Instance, pipeline *describe.Pipeline) error {
	path, err := ask(rl, "image path> ", "")
	if err != nil {
		return err
	}
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	img := describe.UploadedImage{
		Data:     data,
		Format:   imageproc.Format(path, ""),
		Filename: filepath.Base(path),
	}

	ctx := context.Background()
	class, err := pipeline.ClassifyImage(ctx, img)
	if err != nil {
		return err
	}
	fmt.Printf("Predicted class: %d\n", class)

	req := describe.DefaultRequest()
	styleRaw, err := ask(rl, fmt.Sprintf("writing style (formal/informal) [%s]> ", req.Style), string(req.Style))
	if err != nil {
		return err
	}
	if req.Style, err = describe.ParseStyle(styleRaw); err != nil {
		return err
	}
	if req.Length, err = askInt(rl, fmt.Sprintf("text length %d-%d [%d]> ", describe.MinLength, describe.MaxLength, req.Length), req.Length); err != nil {
		return err
	}
	if req.Paragraphs, err = askInt(rl, fmt.Sprintf("paragraphs %d-%d [%d]> ", describe.MinParagraphs, describe.MaxParagraphs, req.Paragraphs), req.Paragraphs); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	_, description, err := pipeline.Describe(ctx, req, class)
	if err != nil {
		return err
	}
	fmt.Println("Generated Description:")
	fmt.Println(description)
	fmt.Println()
	return nil
}

func ask(rl *readline.Instance, prompt, fallback string) (string, error) {
	rl.SetPrompt(prompt)
	line, err := rl.Readline()
	if err != nil {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == ":q" {
		return "", errQuit
	}
	if line == "" {
		return fallback, nil
	}
	return line, nil
}

func askInt(rl *readline.Instance, prompt string, fallback int) (int, error) {
	raw, err := ask(rl, prompt, strconv.Itoa(fallback))
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", describe.ErrInvalidRequest, raw)
	}
	return value, nil
}
