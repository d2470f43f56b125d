package mock_test

import (
	"context"
	"testing"

	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"

	"mealsense"
	"mealsense/inference/mock"
)

func TestLLMClient_Generate(t *testing.T) {
	t.Run("matches by prompt substring", func(t *testing.T) {
		llm := mock.NewLLMClient().
			Respond("Identify the food items", `[]`).
			Respond("Estimate nutrition ranges", `[{"calories": {}}]`)

		resp, err := llm.Generate(context.Background(), mealsense.InferenceRequest{
			Prompt: "Estimate nutrition ranges for each of these recognized food items",
		})
		must.NoError(t, err)
		should.Equal(t, `[{"calories": {}}]`, resp)
	})

	t.Run("first matching rule wins", func(t *testing.T) {
		llm := mock.NewLLMClient().
			Respond("food", "first").
			Respond("food items", "second")

		resp, err := llm.Generate(context.Background(), mealsense.InferenceRequest{Prompt: "Identify the food items"})
		must.NoError(t, err)
		should.Equal(t, "first", resp)
	})

	t.Run("unmatched prompt errors", func(t *testing.T) {
		llm := mock.NewLLMClient().Respond("Identify the food items", `[]`)

		_, err := llm.Generate(context.Background(), mealsense.InferenceRequest{Prompt: "something else entirely"})
		must.Error(t, err)
		should.Contains(t, err.Error(), "no scripted response")
	})

	t.Run("failing client always errors", func(t *testing.T) {
		llm := mock.NewFailingLLMClient(should.AnError)

		_, err := llm.Generate(context.Background(), mealsense.InferenceRequest{Prompt: "anything"})
		should.ErrorIs(t, err, should.AnError)
	})
}
