package gdrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	driveScope      = "https://www.googleapis.com/auth/drive.file"
	driveFilesURL   = "https://www.googleapis.com/drive/v3/files"
	driveUploadURL  = "https://www.googleapis.com/upload/drive/v3/files"
	folderMimeType  = "application/vnd.google-apps.folder"
	jwtBearerGrant  = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	defaultTokenURI = "https://oauth2.googleapis.com/token"
)

// ErrCredentialsMissing means the service-account key file is absent or
// unreadable. The client never falls back to an interactive flow.
var ErrCredentialsMissing = errors.New("backup credentials missing: service-account key file not available")

var ErrNoBackupFound = errors.New("no backup artifact found")

type serviceAccountKey struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

type driveFile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CreatedTime string `json:"createdTime"`
	WebViewLink string `json:"webViewLink"`
}

// Client is the blob-store side of the backup protocol: upload a dump into
// a dedicated folder, find the newest dump, download it.
type Client struct {
	httpClient *http.Client
	keyFile    string
	folderName string

	mu          sync.Mutex
	folderID    string
	accessToken string
	tokenExpiry time.Time
}

func NewClient(keyFile, folderName string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		keyFile:    keyFile,
		folderName: folderName,
	}
}

// Upload ships the file at path into the backup folder under the given name
// and returns the shareable link.
func (c *Client) Upload(ctx context.Context, path, name string) (string, error) {
	token, err := c.token(ctx)
	if err != nil {
		return "", err
	}
	folderID, err := c.findOrCreateFolder(ctx, token)
	if err != nil {
		return "", err
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open backup artifact failed: %w", err)
	}
	defer file.Close()

	var body strings.Builder
	writer := multipart.NewWriter(&body)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return "", fmt.Errorf("build upload metadata failed: %w", err)
	}
	meta := map[string]interface{}{
		"name":    name,
		"parents": []string{folderID},
	}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return "", fmt.Errorf("encode upload metadata failed: %w", err)
	}

	fileHeader := textproto.MIMEHeader{}
	fileHeader.Set("Content-Type", "application/octet-stream")
	filePart, err := writer.CreatePart(fileHeader)
	if err != nil {
		return "", fmt.Errorf("build upload part failed: %w", err)
	}
	if _, err := io.Copy(filePart, file); err != nil {
		return "", fmt.Errorf("read backup artifact failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finish upload body failed: %w", err)
	}

	uploadURL := driveUploadURL + "?uploadType=multipart&fields=id,webViewLink"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, strings.NewReader(body.String()))
	if err != nil {
		return "", fmt.Errorf("build upload request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	var uploaded driveFile
	if err := c.doJSON(req, &uploaded); err != nil {
		return "", fmt.Errorf("upload backup failed: %w", err)
	}
	return uploaded.WebViewLink, nil
}

// DownloadLatest fetches the newest artifact with the given extension into
// dest. Selection is newest-by-creation-time.
func (c *Client) DownloadLatest(ctx context.Context, dest, ext string) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}
	folderID, err := c.findOrCreateFolder(ctx, token)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("'%s' in parents and trashed=false", folderID)
	listURL := driveFilesURL + "?" + url.Values{
		"q":        {query},
		"orderBy":  {"createdTime desc"},
		"pageSize": {"50"},
		"fields":   {"files(id, name, createdTime)"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return fmt.Errorf("build list request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var listing struct {
		Files []driveFile `json:"files"`
	}
	if err := c.doJSON(req, &listing); err != nil {
		return fmt.Errorf("list backups failed: %w", err)
	}

	latest, ok := pickLatest(listing.Files, ext)
	if !ok {
		return ErrNoBackupFound
	}

	downloadURL := fmt.Sprintf("%s/%s?alt=media", driveFilesURL, url.PathEscape(latest.ID))
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return fmt.Errorf("build download request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download backup failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download backup failed: %s", readAPIError(resp))
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create download destination failed: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write download destination failed: %w", err)
	}
	return nil
}

// pickLatest filters by extension and orders by createdTime descending. The
// listing already arrives sorted, sorting again keeps the policy local.
func pickLatest(files []driveFile, ext string) (driveFile, bool) {
	matched := make([]driveFile, 0, len(files))
	for _, f := range files {
		if strings.HasSuffix(f.Name, ext) {
			matched = append(matched, f)
		}
	}
	if len(matched) == 0 {
		return driveFile{}, false
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedTime > matched[j].CreatedTime
	})
	return matched[0], true
}

func (c *Client) findOrCreateFolder(ctx context.Context, token string) (string, error) {
	c.mu.Lock()
	cached := c.folderID
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", c.folderName, folderMimeType)
	listURL := driveFilesURL + "?" + url.Values{
		"q":      {query},
		"fields": {"files(id, name)"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return "", fmt.Errorf("build folder lookup failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var listing struct {
		Files []driveFile `json:"files"`
	}
	if err := c.doJSON(req, &listing); err != nil {
		return "", fmt.Errorf("lookup backup folder failed: %w", err)
	}

	var folderID string
	if len(listing.Files) > 0 {
		folderID = listing.Files[0].ID
	} else {
		payload, _ := json.Marshal(map[string]string{
			"name":     c.folderName,
			"mimeType": folderMimeType,
		})
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, driveFilesURL+"?fields=id", strings.NewReader(string(payload)))
		if err != nil {
			return "", fmt.Errorf("build folder create failed: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		var created driveFile
		if err := c.doJSON(req, &created); err != nil {
			return "", fmt.Errorf("create backup folder failed: %w", err)
		}
		folderID = created.ID
	}

	c.mu.Lock()
	c.folderID = folderID
	c.mu.Unlock()
	return folderID, nil
}

// token returns a cached access token or exchanges a fresh service-account
// assertion for one.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-1*time.Minute)) {
		token := c.accessToken
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	key, err := c.loadKey()
	if err != nil {
		return "", err
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(key.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("parse service-account private key failed: %w", err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   key.ClientEmail,
		"scope": driveScope,
		"aud":   key.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(privateKey)
	if err != nil {
		return "", fmt.Errorf("sign service-account assertion failed: %w", err)
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, key.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := c.doJSON(req, &tokenResp); err != nil {
		return "", fmt.Errorf("exchange service-account token failed: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token")
	}

	c.mu.Lock()
	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = now.Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	c.mu.Unlock()
	return tokenResp.AccessToken, nil
}

func (c *Client) loadKey() (*serviceAccountKey, error) {
	if c.keyFile == "" {
		return nil, ErrCredentialsMissing
	}
	raw, err := os.ReadFile(c.keyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialsMissing, err)
	}

	var key serviceAccountKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, fmt.Errorf("parse service-account key failed: %w", err)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, fmt.Errorf("%w: key file lacks client_email or private_key", ErrCredentialsMissing)
	}
	if key.TokenURI == "" {
		key.TokenURI = defaultTokenURI
	}
	return &key, nil
}

func (c *Client) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.New(readAPIError(resp))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response failed: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, text)
}
