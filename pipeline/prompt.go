package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"mealsense"
)

const recognitionSystem = `You are a food recognition assistant. You identify the distinct food items visible in a meal photo. You never invent items you cannot see, and you report an honest confidence for each item. You respond with JSON only: no prose, no markdown fences.`

const estimationSystem = `You are a nutrition estimation assistant. You estimate macro-nutrient ranges for recognized food items, expressing uncertainty as [min, max] intervals rather than point values. You respond with JSON only: no prose, no markdown fences.`

const coachSystem = `You are a supportive, non-judgmental nutrition companion. You never prescribe diets, never moralize about food choices, and never give medical advice. You respond with JSON only: no prose, no markdown fences.`

const judgeSystem = `You are a strict evaluator of AI-generated nutrition analyses. You score one specific quality dimension as a number between 0 and 1. You respond with JSON only: no prose, no markdown fences.`

func f64(v float64) *float64 { return &v }

var recognitionSchema = &jsonschema.Schema{
	Type: "array",
	Items: &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"name":              {Type: "string"},
			"confidence":        {Type: "number", Minimum: f64(0), Maximum: f64(1)},
			"category":          {Type: "string", Description: "one of: vegetable, fruit, grain, protein, dairy, fat, snack, beverage, unknown"},
			"portionSize":       {Type: "string", Description: "estimated portion, e.g. '1 cup' or '150g'"},
			"preparationMethod": {Type: "string", Description: "e.g. fried, grilled, raw, baked"},
		},
		Required: []string{"name", "confidence"},
	},
}

var rangeSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"min":        {Type: "number", Minimum: f64(0)},
		"max":        {Type: "number"},
		"unit":       {Type: "string"},
		"confidence": {Type: "number", Minimum: f64(0), Maximum: f64(1)},
	},
	Required: []string{"min", "max"},
}

var estimationSchema = &jsonschema.Schema{
	Type: "array",
	Items: &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"foodItem":           {Type: "string"},
			"calories":           rangeSchema,
			"protein":            rangeSchema,
			"carbs":              rangeSchema,
			"fat":                rangeSchema,
			"fiber":              rangeSchema,
			"variabilityFactors": {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		},
		Required: []string{"foodItem", "calories", "protein", "carbs", "fat"},
	},
}

var reflectionSchema = &jsonschema.Schema{
	Type: "array",
	Items: &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"question":  {Type: "string"},
			"category":  {Type: "string", Description: "one of: awareness, goals, habits, alternatives"},
			"relevance": {Type: "number", Minimum: f64(0), Maximum: f64(1)},
		},
		Required: []string{"question", "category", "relevance"},
	},
}

var nudgeSchema = &jsonschema.Schema{
	Type: "array",
	Items: &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"message":     {Type: "string"},
			"type":        {Type: "string", Description: "one of: positive, neutral, suggestion"},
			"actionable":  {Type: "boolean"},
			"relatedGoal": {Type: "string"},
		},
		Required: []string{"message", "type"},
	},
}

var judgeSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"score":     {Type: "number", Minimum: f64(0), Maximum: f64(1)},
		"reasoning": {Type: "string"},
	},
	Required: []string{"score"},
}

func mustSchemaJSON(s *jsonschema.Schema) string {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("failed to marshal response schema: %v", err))
	}
	return string(b)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal prompt data: %v", err))
	}
	return string(b)
}

func recognitionInstructions() string {
	return fmt.Sprintf(`Identify the food items in this meal photo.

For each item report: name, confidence (0 to 1), category, and when visible a portionSize and preparationMethod.
Include every candidate item, even ones you are unsure about; do not filter by confidence yourself.

Respond with a JSON array matching this schema:
%s`, mustSchemaJSON(recognitionSchema))
}

func estimationInstructions(items []mealsense.FoodItem) string {
	return fmt.Sprintf(`Estimate nutrition ranges for each of these recognized food items, in the same order:

%s

For each item report calorie, protein, carb and fat ranges (and fiber when meaningful) as {min, max, unit} objects.
Use "kcal" for calories and "g" for macros. Report a confidence (0 to 1) on the calorie range.
List the variabilityFactors that widen each range, such as portion size or preparation method.

Respond with a JSON array (one entry per input item, same order) matching this schema:
%s`, mustJSON(items), mustSchemaJSON(estimationSchema))
}

func reflectionInstructions(items []mealsense.FoodItem, estimates []mealsense.NutritionEstimate) string {
	return fmt.Sprintf(`Generate reflective questions about this meal.

Recognized items:
%s

Nutrition estimates:
%s

Write 3 to 5 open-ended, non-prescriptive questions that invite the person to notice their own patterns.
Never imply the meal was good or bad. Tag each question with a category (awareness, goals, habits or alternatives) and a relevance score (0 to 1).

Respond with a JSON array matching this schema:
%s`, mustJSON(items), mustJSON(estimates), mustSchemaJSON(reflectionSchema))
}

func nudgeInstructions(items []mealsense.FoodItem, estimates []mealsense.NutritionEstimate) string {
	return fmt.Sprintf(`Generate supportive habit nudges for this meal.

Recognized items:
%s

Nutrition estimates:
%s

Write 2 to 3 short, encouraging nudges. Each has a type (positive, neutral or suggestion), an actionable flag,
and optionally a relatedGoal it supports. Suggestions must stay gentle and optional, never prescriptive.

Respond with a JSON array matching this schema:
%s`, mustJSON(items), mustJSON(estimates), mustSchemaJSON(nudgeSchema))
}

func hallucinationInstructions(resultJSON string) string {
	return fmt.Sprintf(`Score the factual grounding of this meal analysis.

%s

Judge whether the nutrition claims are plausible for the recognized foods and whether any item or estimate
looks invented rather than derived from the input. 1.0 means fully grounded, 0.0 means fabricated.

Respond with a JSON object matching this schema:
%s`, resultJSON, mustSchemaJSON(judgeSchema))
}

func clarityInstructions(resultJSON string) string {
	return fmt.Sprintf(`Score the clarity of this meal analysis.

%s

Judge structure and readability: are ranges, warnings and prompts coherent, well-formed and free of
contradictions? 1.0 means perfectly clear, 0.0 means unreadable.

Respond with a JSON object matching this schema:
%s`, resultJSON, mustSchemaJSON(judgeSchema))
}

func toneInstructions(resultJSON string) string {
	return fmt.Sprintf(`Score the tone safety of this meal analysis.

%s

Judge the absence of prescriptive dietary or medical language: reflective questions must stay open-ended and
nudges supportive. 1.0 means entirely safe and non-prescriptive, 0.0 means directive medical advice.

Respond with a JSON object matching this schema:
%s`, resultJSON, mustSchemaJSON(judgeSchema))
}
