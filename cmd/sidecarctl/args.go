package main

import (
	"fmt"
	"strings"
)

// parseFilters разбирает фильтры вида key=value.
func parseFilters(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	filters := make(map[string]string, len(raw))
	for _, f := range raw {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("фильтр %q должен иметь вид ключ=значение", f)
		}
		filters[key] = value
	}
	return filters, nil
}

// parseTargets разбирает цели действия вида sidecar:collector[,collector].
// Коллекторы одного сайдкара из разных аргументов объединяются.
func parseTargets(raw []string) (map[string][]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("не указаны коллекторы")
	}
	targets := make(map[string][]string, len(raw))
	for _, t := range raw {
		sidecarID, list, ok := strings.Cut(t, ":")
		if !ok || sidecarID == "" || list == "" {
			return nil, fmt.Errorf("цель %q должна иметь вид сайдкар:коллектор", t)
		}
		for _, id := range strings.Split(list, ",") {
			if id = strings.TrimSpace(id); id != "" {
				targets[sidecarID] = append(targets[sidecarID], id)
			}
		}
	}
	return targets, nil
}
