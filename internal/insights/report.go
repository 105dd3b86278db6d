package insights

import (
	"fmt"
	"strings"
	"time"

	"agriprice/domain/dataset"
	"agriprice/domain/model"
)

// ModelSummary is the input to the model performance report
type ModelSummary struct {
	GeneratedAt time.Time
	ActiveModel string
	Version     uint64
	Dataset     dataset.Stats
	Metrics     []model.ModelMetrics
	Runs        []model.TrainingRun
}

// ModelReport renders a markdown summary of the serving models
func ModelReport(s ModelSummary) string {
	var b strings.Builder

	b.WriteString("# Model Performance Report\n\n")
	fmt.Fprintf(&b, "Generated %s. ", s.GeneratedAt.UTC().Format(time.RFC1123))
	if s.ActiveModel == "" {
		b.WriteString("Models are not trained yet.\n\n")
	} else {
		fmt.Fprintf(&b, "Serving **%s** (version %d).\n\n", s.ActiveModel, s.Version)
	}

	b.WriteString("## Dataset\n\n")
	if s.Dataset.TotalSamples == 0 {
		b.WriteString("No observations loaded.\n\n")
	} else {
		fmt.Fprintf(&b, "- Samples: %d\n", s.Dataset.TotalSamples)
		if n := len(s.Dataset.Years); n > 0 {
			fmt.Fprintf(&b, "- Years: %d-%d\n", s.Dataset.Years[0], s.Dataset.Years[n-1])
		}
		fmt.Fprintf(&b, "- Markets: %d\n", len(s.Dataset.Cities))
		fmt.Fprintf(&b, "- Varieties: %d\n", len(s.Dataset.Varieties))
		fmt.Fprintf(&b, "- Price range: ₹%.0f to ₹%.0f (mean ₹%.0f)\n\n",
			s.Dataset.PriceRange.Min, s.Dataset.PriceRange.Max, s.Dataset.PriceRange.Avg)
	}

	b.WriteString("## Models\n\n")
	b.WriteString("| Model | Accuracy | MAE | RMSE | R² |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, m := range s.Metrics {
		if !m.Trained {
			fmt.Fprintf(&b, "| %s | - | - | - | - |\n", m.Name)
			continue
		}
		r2 := "undefined"
		if m.R2Defined {
			r2 = fmt.Sprintf("%.4f", m.R2Score)
		}
		name := m.Name
		if name == s.ActiveModel {
			name = "**" + name + "**"
		}
		fmt.Fprintf(&b, "| %s | %.1f%% | %.2f | %.2f | %s |\n", name, m.Accuracy, m.MAE, m.RMSE, r2)
	}
	b.WriteString("\n")

	if len(s.Runs) > 0 {
		b.WriteString("## Recent Training Runs\n\n")
		for _, run := range s.Runs {
			fmt.Fprintf(&b, "- `%s` %s: %d samples, %s, took %s\n",
				run.ID, run.CompletedAt.UTC().Format(time.RFC3339), run.SampleCount, run.ActiveModel,
				run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond))
		}
	}

	return b.String()
}
