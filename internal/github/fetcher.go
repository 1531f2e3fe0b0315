package github

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"
)

// Source identifies a directory in a repository.
type Source struct {
	Owner    string
	Repo     string
	Ref      string // Branch, tag or SHA; empty means the default branch
	BasePath string // Directory to import; empty means the repository root
}

// ParseSource parses "owner/repo[/path][@ref]".
func ParseSource(s string) (Source, error) {
	var src Source
	if at := strings.LastIndex(s, "@"); at >= 0 {
		src.Ref = s[at+1:]
		s = s[:at]
	}
	parts := strings.SplitN(strings.Trim(s, "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Source{}, fmt.Errorf("invalid repository %q, want owner/repo[/path][@ref]", s)
	}
	src.Owner, src.Repo = parts[0], parts[1]
	if len(parts) == 3 {
		src.BasePath = parts[2]
	}
	return src, nil
}

func (s Source) String() string {
	out := path.Join(s.Owner, s.Repo, s.BasePath)
	if s.Ref != "" {
		out += "@" + s.Ref
	}
	return out
}

// FetchedFile is a file downloaded from a repository.
type FetchedFile struct {
	Path    string // Relative to Source.BasePath
	Content []byte
	SHA     string // Git blob SHA
	URL     string // Browser URL of the file
}

// Fetcher lists and downloads files from one repository directory.
type Fetcher struct {
	client  *Client
	src     Source
	allowed func(name string) bool
}

// NewFetcher creates a fetcher. allowed filters file names; nil accepts every file.
func NewFetcher(client *Client, src Source, allowed func(name string) bool) *Fetcher {
	if allowed == nil {
		allowed = func(string) bool { return true }
	}
	return &Fetcher{client: client, src: src, allowed: allowed}
}

func (f *Fetcher) contentOptions() *github.RepositoryContentGetOptions {
	if f.src.Ref == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: f.src.Ref}
}

// ListFiles recursively lists accepted files below the base path, as paths relative to it.
func (f *Fetcher) ListFiles(ctx context.Context) ([]string, error) {
	return f.listRecursive(ctx, f.src.BasePath, "")
}

func (f *Fetcher) listRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var files []string

	_, dirContents, _, err := f.client.Repositories.GetContents(
		ctx,
		f.src.Owner,
		f.src.Repo,
		fullPath,
		f.contentOptions(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %q: %w", fullPath, err)
	}

	for _, item := range dirContents {
		name := item.GetName()
		if name == "" {
			continue
		}
		itemRelPath := path.Join(relativePath, name)

		switch item.GetType() {
		case "file":
			if f.allowed(name) {
				files = append(files, itemRelPath)
			}
		case "dir":
			sub, err := f.listRecursive(ctx, path.Join(fullPath, name), itemRelPath)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
		}
	}

	return files, nil
}

// FetchFile downloads one file by its path relative to the base path.
func (f *Fetcher) FetchFile(ctx context.Context, relativePath string) (*FetchedFile, error) {
	fullPath := path.Join(f.src.BasePath, relativePath)

	fileContent, _, _, err := f.client.Repositories.GetContents(
		ctx,
		f.src.Owner,
		f.src.Repo,
		fullPath,
		f.contentOptions(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", fullPath, err)
	}
	if fileContent == nil {
		return nil, fmt.Errorf("%s is a directory", fullPath)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", fullPath, err)
	}

	return &FetchedFile{
		Path:    relativePath,
		Content: []byte(content),
		SHA:     fileContent.GetSHA(),
		URL:     fileContent.GetHTMLURL(),
	}, nil
}

// LatestCommitSHA returns the SHA of the most recent commit touching the base path.
func (f *Fetcher) LatestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := f.client.Repositories.ListCommits(
		ctx,
		f.src.Owner,
		f.src.Repo,
		&github.CommitsListOptions{
			SHA:  f.src.Ref,
			Path: f.src.BasePath,
			ListOptions: github.ListOptions{
				PerPage: 1,
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}
	if len(commits) == 0 || commits[0].GetSHA() == "" {
		return "", fmt.Errorf("no commits found for path %q", f.src.BasePath)
	}
	return commits[0].GetSHA(), nil
}
