package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/aitzolm/basomap/internal/core/domain"
)

// boundsFromArgs decodes a BoundsInput argument map.
func boundsFromArgs(m map[string]interface{}) domain.Bounds {
	num := func(key string) float64 {
		if v, ok := m[key].(float64); ok {
			return v
		}
		return 0
	}
	return domain.Bounds{
		MinLat: num("min_lat"),
		MinLon: num("min_lon"),
		MaxLat: num("max_lat"),
		MaxLon: num("max_lon"),
	}
}

// filterFromArgs decodes an optional FilterInput argument map.
func filterFromArgs(m map[string]interface{}) domain.AttributeFilter {
	var f domain.AttributeFilter
	if m == nil {
		return f
	}
	if raw, ok := m["species"].([]interface{}); ok {
		for _, s := range raw {
			if name, ok := s.(string); ok && name != "" {
				f.Species = append(f.Species, name)
			}
		}
	}
	bound := func(key string) *float64 {
		if v, ok := m[key].(float64); ok {
			return &v
		}
		return nil
	}
	f.MinHeightM = bound("min_height_m")
	f.MaxHeightM = bound("max_height_m")
	f.MinDiameterCm = bound("min_diameter_cm")
	f.MaxDiameterCm = bound("max_diameter_cm")
	return f
}

// shapeFromArgs decodes an optional ShapeInput argument map.
func shapeFromArgs(m map[string]interface{}) domain.DrawnShape {
	var shape domain.DrawnShape
	if m == nil {
		return shape
	}
	if rect, ok := m["rect"].(map[string]interface{}); ok {
		b := boundsFromArgs(rect)
		shape.Rect = &b
	}
	if ring, ok := m["ring"].([]interface{}); ok {
		for _, raw := range ring {
			pt, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			lat, _ := pt["lat"].(float64)
			lon, _ := pt["lon"].(float64)
			shape.Ring = append(shape.Ring, domain.GeoPoint{Lat: lat, Lon: lon})
		}
	}
	return shape
}

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	treeRecordType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TreeRecord",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"location":    &graphql.Field{Type: geoPointType},
			"species":     &graphql.Field{Type: graphql.String},
			"diameter_cm": &graphql.Field{Type: graphql.Float},
			"height_m":    &graphql.Field{Type: graphql.Float},
			"volume_m3":   &graphql.Field{Type: graphql.Float},
		},
	})

	visibleSetType := graphql.NewObject(graphql.ObjectConfig{
		Name: "VisibleSet",
		Fields: graphql.Fields{
			"records":        &graphql.Field{Type: graphql.NewList(treeRecordType)},
			"rendered_count": &graphql.Field{Type: graphql.Int},
			"visible_count":  &graphql.Field{Type: graphql.Int},
		},
	})

	areaStatsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "AreaStats",
		Fields: graphql.Fields{
			"count":           &graphql.Field{Type: graphql.Int},
			"avg_diameter_cm": &graphql.Field{Type: graphql.Float},
			"avg_height_m":    &graphql.Field{Type: graphql.Float},
		},
	})

	planType := graphql.NewObject(graphql.ObjectConfig{
		Name: "WorkPlan",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"title":      &graphql.Field{Type: graphql.String},
			"stand_id":   &graphql.Field{Type: graphql.String},
			"species":    &graphql.Field{Type: graphql.String},
			"starts_on":  &graphql.Field{Type: graphql.DateTime},
			"ends_on":    &graphql.Field{Type: graphql.DateTime},
			"status":     &graphql.Field{Type: graphql.String},
			"notes":      &graphql.Field{Type: graphql.String},
			"created_at": &graphql.Field{Type: graphql.DateTime},
			"updated_at": &graphql.Field{Type: graphql.DateTime},
		},
	})

	reportType := graphql.NewObject(graphql.ObjectConfig{
		Name: "WorkReport",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"plan_id":     &graphql.Field{Type: graphql.String},
			"author":      &graphql.Field{Type: graphql.String},
			"reported_at": &graphql.Field{Type: graphql.DateTime},
			"trees_cut":   &graphql.Field{Type: graphql.Int},
			"volume_m3":   &graphql.Field{Type: graphql.Float},
			"notes":       &graphql.Field{Type: graphql.String},
		},
	})

	boundsInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "BoundsInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"min_lat": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"min_lon": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"max_lat": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"max_lon": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
		},
	})

	geoPointInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "GeoPointInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"lat": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"lon": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
		},
	})

	filterInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "FilterInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"species":         &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.String)},
			"min_height_m":    &graphql.InputObjectFieldConfig{Type: graphql.Float},
			"max_height_m":    &graphql.InputObjectFieldConfig{Type: graphql.Float},
			"min_diameter_cm": &graphql.InputObjectFieldConfig{Type: graphql.Float},
			"max_diameter_cm": &graphql.InputObjectFieldConfig{Type: graphql.Float},
		},
	})

	shapeInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "ShapeInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"rect": &graphql.InputObjectFieldConfig{Type: boundsInput},
			"ring": &graphql.InputObjectFieldConfig{Type: graphql.NewList(geoPointInput)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"inventory": &graphql.Field{
				Type:        visibleSetType,
				Description: "Rendered record set for a viewport and filter",
				Args: graphql.FieldConfigArgument{
					"viewport": &graphql.ArgumentConfig{Type: graphql.NewNonNull(boundsInput)},
					"filter":   &graphql.ArgumentConfig{Type: filterInput},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					viewport := boundsFromArgs(p.Args["viewport"].(map[string]interface{}))
					filter, _ := p.Args["filter"].(map[string]interface{})

					vs, err := deps.Dataset.RecomputeVisibleSet(p.Context, viewport, filterFromArgs(filter))
					if err != nil && len(vs.Rendered) == 0 {
						return nil, err
					}
					return map[string]interface{}{
						"records":        vs.Rendered,
						"rendered_count": len(vs.Rendered),
						"visible_count":  vs.VisibleCount,
					}, nil
				},
			},
			"areaStats": &graphql.Field{
				Type:        areaStatsType,
				Description: "Aggregate the rendered subset inside a drawn shape",
				Args: graphql.FieldConfigArgument{
					"viewport": &graphql.ArgumentConfig{Type: graphql.NewNonNull(boundsInput)},
					"filter":   &graphql.ArgumentConfig{Type: filterInput},
					"shape":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(shapeInput)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					viewport := boundsFromArgs(p.Args["viewport"].(map[string]interface{}))
					filter, _ := p.Args["filter"].(map[string]interface{})
					shape, _ := p.Args["shape"].(map[string]interface{})

					vs, err := deps.Dataset.RecomputeVisibleSet(p.Context, viewport, filterFromArgs(filter))
					if err != nil && len(vs.Rendered) == 0 {
						return nil, err
					}
					stats := domain.ComputeAreaStats(shapeFromArgs(shape), vs.Rendered)
					return stats.Rounded(), nil
				},
			},
			"plans": &graphql.Field{
				Type:        graphql.NewList(planType),
				Description: "List all work plans",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Plans.List(p.Context)
				},
			},
			"plan": &graphql.Field{
				Type:        planType,
				Description: "Get a work plan by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Plans.GetByID(p.Context, p.Args["id"].(string))
				},
			},
			"planReports": &graphql.Field{
				Type:        graphql.NewList(reportType),
				Description: "Reports filed against a plan",
				Args: graphql.FieldConfigArgument{
					"plan_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Reports.ListByPlan(p.Context, p.Args["plan_id"].(string))
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}
