package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/salmodiario/internal/ai/diffusers"
	"github.com/salmodiario/internal/ai/google"
	"github.com/salmodiario/internal/ai/huggingface"
	"github.com/salmodiario/internal/ai/replicate"
)

type HuggingFace struct {
	Client         *huggingface.Client
	Steps          int
	Guidance       float64
	NegativePrompt string
}

func (generator *HuggingFace) Generate(ctx context.Context, prompt string, width, height int) (image.Image, error) {
	data, err := generator.Client.TextToImage(ctx, prompt, huggingface.Parameters{
		Width:             width,
		Height:            height,
		NumInferenceSteps: generator.Steps,
		GuidanceScale:     generator.Guidance,
		NegativePrompt:    generator.NegativePrompt,
	})
	if err != nil {
		return nil, err
	}
	return decodeAndFit(data, width, height)
}

type Replicate struct {
	Client     *replicate.Client
	PreferWait bool
}

func (generator *Replicate) Generate(ctx context.Context, prompt string, width, height int) (image.Image, error) {
	prediction, err := generator.Client.CreateImage(ctx, replicate.ImageRequest{
		Prompt:       prompt,
		AspectRatio:  AspectRatio(width, height),
		OutputFormat: "png",
		NumOutputs:   1,
	}, generator.PreferWait)
	if err != nil {
		return nil, err
	}

	prediction, err = generator.Client.Await(ctx, prediction)
	if err != nil {
		return nil, err
	}

	ref := replicate.PickImage(prediction.ImageURLs(), "png")
	if ref == "" {
		return nil, fmt.Errorf("replicate prediction %s returned no image", prediction.ID)
	}
	data, err := generator.Client.FetchImage(ctx, ref)
	if err != nil {
		return nil, err
	}
	return decodeAndFit(data, width, height)
}

type OpenAI struct {
	Client openai.Client
	Model  string
	Size   string
}

func NewOpenAI(apiKey, model, size string, timeout time.Duration, opts ...option.RequestOption) *OpenAI {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
	}, opts...)
	return &OpenAI{
		Client: openai.NewClient(opts...),
		Model:  model,
		Size:   size,
	}
}

func (generator *OpenAI) Generate(ctx context.Context, prompt string, width, height int) (image.Image, error) {
	response, err := generator.Client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(generator.Model),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize(generator.Size),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("openai images: %w", err)
	}
	if len(response.Data) == 0 || response.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("openai images returned no data")
	}

	data, err := base64.StdEncoding.DecodeString(response.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("openai images decode: %w", err)
	}
	return decodeAndFit(data, width, height)
}

type Imagen struct {
	Client         *google.Client
	NegativePrompt string
}

func (generator *Imagen) Generate(ctx context.Context, prompt string, width, height int) (image.Image, error) {
	data, err := generator.Client.GenerateImage(ctx, prompt, generator.NegativePrompt, AspectRatio(width, height))
	if err != nil {
		return nil, err
	}
	return decodeAndFit(data, width, height)
}

type Diffusers struct {
	Client         *diffusers.Client
	Model          string
	Steps          int
	Guidance       float64
	NegativePrompt string
}

func (generator *Diffusers) Generate(ctx context.Context, prompt string, width, height int) (image.Image, error) {
	jobID, err := generator.Client.SubmitJob(ctx, diffusers.GenerateRequest{
		Prompt:            prompt,
		NegativePrompt:    generator.NegativePrompt,
		Model:             generator.Model,
		Width:             width,
		Height:            height,
		NumInferenceSteps: generator.Steps,
		GuidanceScale:     generator.Guidance,
	})
	if err != nil {
		return nil, err
	}

	status, err := generator.Client.Wait(ctx, jobID)
	if err != nil {
		return nil, err
	}
	data, err := generator.Client.DownloadOutput(ctx, status)
	if err != nil {
		return nil, err
	}
	return decodeAndFit(data, width, height)
}
