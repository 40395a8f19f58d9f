package inproc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Functions executed on the caller's goroutine instead of the worker pool.
// Resolving an app request must not queue behind the request waiting on it.
var inline = map[string]bool{
	"client.resolve_app_request": true,
}

// clientModule implements the built-in "client" namespace.
type clientModule struct {
	engine *Engine
}

func (m *clientModule) Namespace() string { return "client" }

type ResultOfVersion struct {
	Version string `json:"version"`
}

func (m *clientModule) Version(ctx context.Context) (ResultOfVersion, error) {
	return ResultOfVersion{Version: m.engine.opts.version}, nil
}

type ResultOfBuildInfo struct {
	Dependencies []BuildInfoDependency `json:"dependencies"`
	BuildNumber  uint32                `json:"build_number"`
}

type BuildInfoDependency struct {
	Name      string `json:"name"`
	GitCommit string `json:"git_commit"`
}

func (m *clientModule) BuildInfo(ctx context.Context) (ResultOfBuildInfo, error) {
	return ResultOfBuildInfo{Dependencies: []BuildInfoDependency{}}, nil
}

type apiFunction struct {
	Name string `json:"name"`
}

type apiModule struct {
	Name      string        `json:"name"`
	Functions []apiFunction `json:"functions"`
}

type ResultOfGetAPIReference struct {
	API struct {
		Version string      `json:"version"`
		Modules []apiModule `json:"modules"`
	} `json:"api"`
}

func (m *clientModule) GetAPIReference(ctx context.Context) (ResultOfGetAPIReference, error) {
	var res ResultOfGetAPIReference
	res.API.Version = m.engine.opts.version

	mods := m.engine.registry.Modules()
	names := make([]string, 0, len(mods))
	for name := range mods {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		mod := apiModule{Name: name}
		for _, fn := range mods[name] {
			mod.Functions = append(mod.Functions, apiFunction{Name: fn})
		}
		res.API.Modules = append(res.API.Modules, mod)
	}
	return res, nil
}

// AppRequestResult is the application's answer to an app request.
type AppRequestResult struct {
	Result json.RawMessage `json:"result,omitempty"`
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
}

type ParamsOfResolveAppRequest struct {
	Result       AppRequestResult `json:"result"`
	AppRequestID uint32           `json:"app_request_id"`
}

func (m *clientModule) ResolveAppRequest(ctx context.Context, p ParamsOfResolveAppRequest) error {
	var r appResult
	switch p.Result.Type {
	case "Ok":
		r.result = p.Result.Result
		if len(r.result) == 0 {
			r.result = json.RawMessage("null")
		}
	case "Error":
		r.err = &ClientError{
			Code:    CodeAppRequestError,
			Message: fmt.Sprintf("Application request returned error: %s", p.Result.Text),
		}
	default:
		return &ClientError{
			Code:    CodeInvalidParams,
			Message: fmt.Sprintf("Invalid parameters: unknown app request result type %q", p.Result.Type),
		}
	}

	if !m.engine.resolveApp(p.AppRequestID, r) {
		return &ClientError{
			Code:    CodeNoSuchRequest,
			Message: fmt.Sprintf("No such request: %d", p.AppRequestID),
		}
	}
	return nil
}
