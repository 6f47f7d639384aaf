package pilot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sensorvision/pilot/pkg/models"
)

// deviceContext is telemetry context gathered for a device set. Everything
// is fetched in two batched queries regardless of how many devices or
// variables are involved.
type deviceContext struct {
	Devices   []models.Device
	Variables map[string][]models.Variable // Keyed by device ID.
	Stats     map[int64]models.VariableStats
	Latest    map[int64]models.DataPoint
	From      time.Time
	To        time.Time
}

// gatherDeviceContext loads variables and windowed statistics for the
// given devices: one query for all variables across the device set, one
// query for all statistics across the variable set. Variables are capped
// per device so a single chatty device cannot crowd out the rest.
func gatherDeviceContext(ctx context.Context, src Sources, devices []models.Device, maxVarsPerDevice int, from, to time.Time, includeLatest bool) (*deviceContext, error) {
	dc := &deviceContext{
		Devices:   devices,
		Variables: make(map[string][]models.Variable),
		Stats:     make(map[int64]models.VariableStats),
		Latest:    make(map[int64]models.DataPoint),
		From:      from,
		To:        to,
	}
	if len(devices) == 0 {
		return dc, nil
	}

	deviceIDs := make([]string, len(devices))
	for i, d := range devices {
		deviceIDs[i] = d.ID
	}

	vars, err := src.Variables.VariablesByDeviceIDs(ctx, deviceIDs)
	if err != nil {
		return nil, fmt.Errorf("load variables: %w", err)
	}

	var variableIDs []int64
	for _, v := range vars {
		if maxVarsPerDevice > 0 && len(dc.Variables[v.DeviceID]) >= maxVarsPerDevice {
			continue
		}
		dc.Variables[v.DeviceID] = append(dc.Variables[v.DeviceID], v)
		variableIDs = append(variableIDs, v.ID)
	}
	if len(variableIDs) == 0 {
		return dc, nil
	}

	stats, err := src.Stats.StatsByVariableIDs(ctx, variableIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("load statistics: %w", err)
	}
	for _, s := range stats {
		dc.Stats[s.VariableID] = s
	}

	if includeLatest {
		latest, err := src.Stats.LatestByVariableIDs(ctx, variableIDs)
		if err != nil {
			return nil, fmt.Errorf("load latest values: %w", err)
		}
		for _, p := range latest {
			dc.Latest[p.VariableID] = p
		}
	}

	return dc, nil
}

// render writes the gathered context as the markdown block the prompts
// embed. Devices with no variables still appear so the model knows they
// exist but are silent.
func (dc *deviceContext) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Devices (%d)\n", len(dc.Devices))
	fmt.Fprintf(&b, "Time window: %s to %s\n\n",
		dc.From.UTC().Format(time.RFC3339), dc.To.UTC().Format(time.RFC3339))

	for _, d := range dc.Devices {
		fmt.Fprintf(&b, "### %s (type: %s, status: %s)\n", d.Name, d.DeviceType, d.Status)
		if d.Location != "" {
			fmt.Fprintf(&b, "Location: %s\n", d.Location)
		}

		vars := dc.Variables[d.ID]
		if len(vars) == 0 {
			b.WriteString("No telemetry variables.\n\n")
			continue
		}
		for _, v := range vars {
			name := v.DisplayName
			if name == "" {
				name = v.Name
			}
			fmt.Fprintf(&b, "- %s", name)
			if v.Unit != "" {
				fmt.Fprintf(&b, " (%s)", v.Unit)
			}
			if s, ok := dc.Stats[v.ID]; ok {
				fmt.Fprintf(&b, ": avg %.2f, min %.2f, max %.2f over %d readings", s.Avg, s.Min, s.Max, s.Count)
			} else {
				b.WriteString(": no readings in window")
			}
			if p, ok := dc.Latest[v.ID]; ok {
				fmt.Fprintf(&b, "; latest %.2f at %s", p.Value, p.Timestamp.UTC().Format(time.RFC3339))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// supportingPoints converts the freshest readings into the citation list
// returned alongside a query answer. Capped at max points.
func (dc *deviceContext) supportingPoints(max int) []SupportingPoint {
	if max <= 0 {
		return nil
	}

	deviceName := make(map[string]string, len(dc.Devices))
	for _, d := range dc.Devices {
		deviceName[d.ID] = d.Name
	}

	var points []SupportingPoint
	for _, d := range dc.Devices {
		for _, v := range dc.Variables[d.ID] {
			p, ok := dc.Latest[v.ID]
			if !ok {
				continue
			}
			points = append(points, SupportingPoint{
				DeviceName:   deviceName[d.ID],
				VariableName: v.Name,
				Value:        p.Value,
				Unit:         v.Unit,
				Timestamp:    p.Timestamp,
			})
			if len(points) >= max {
				return points
			}
		}
	}
	return points
}
