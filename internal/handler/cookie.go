package handler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"viral-clipper/config"
	"viral-clipper/internal/response"
	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
	"viral-clipper/pkg/util"
)

const (
	defaultCookieFile = "cookies.txt"
	// public video used to probe whether yt-dlp accepts the cookies
	cookieProbeURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
)

var execCommand = exec.CommandContext

// CookieStatusResponse contains cookie file status information
type CookieStatusResponse struct {
	Exists           bool   `json:"exists"`
	LastModified     string `json:"lastModified"`
	LastModifiedTs   int64  `json:"lastModifiedTs"`
	CookieCount      int    `json:"cookieCount"`
	EarliestExpiry   string `json:"earliestExpiry"`
	EarliestExpiryTs int64  `json:"earliestExpiryTs"`
	DaysUntilExpiry  int    `json:"daysUntilExpiry"`
	Status           string `json:"status"` // "valid", "expiring_soon", "expired", "not_found"
	StatusMsg        string `json:"statusMsg"`
}

func cookieFilePath() string {
	if p := strings.TrimSpace(config.Conf.Deps.CookiesPath); p != "" {
		return p
	}
	return defaultCookieFile
}

// GetCookieStatus reports whether the yt-dlp cookies file exists and when it expires.
func (h Handler) GetCookieStatus(c *gin.Context) {
	status, err := inspectCookieFile(cookieFilePath(), time.Now())
	if err != nil {
		log.GetLogger().Error("GetCookieStatus failed", zap.Error(err))
		response.ErrorResponse(c, err)
		return
	}
	response.Success(c, status)
}

// inspectCookieFile parses a Netscape cookies file. Session cookies have no
// expiry, so a file holding only those is judged by its age.
func inspectCookieFile(path string, now time.Time) (CookieStatusResponse, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return CookieStatusResponse{
			Exists:    false,
			Status:    "not_found",
			StatusMsg: "Cookie file not found",
		}, nil
	}
	if err != nil {
		return CookieStatusResponse{}, apperrors.Wrap(apperrors.CodeFileNotFound, "failed to read cookie file status", err)
	}

	result := CookieStatusResponse{
		Exists:         true,
		LastModified:   info.ModTime().Format("2006-01-02 15:04:05"),
		LastModifiedTs: info.ModTime().Unix(),
	}

	file, err := os.Open(path)
	if err != nil {
		return CookieStatusResponse{}, apperrors.Wrap(apperrors.CodeFileNotFound, "failed to open cookie file", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var earliestExpiry int64
	for scanner.Scan() {
		fields, ok := cookieFields(scanner.Text())
		if !ok {
			continue
		}
		result.CookieCount++
		expiry, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil || expiry == 0 {
			continue
		}
		if earliestExpiry == 0 || expiry < earliestExpiry {
			earliestExpiry = expiry
		}
	}

	if earliestExpiry > 0 {
		expiryTime := time.Unix(earliestExpiry, 0)
		result.EarliestExpiry = expiryTime.Format("2006-01-02 15:04:05")
		result.EarliestExpiryTs = earliestExpiry
		daysUntil := int(expiryTime.Sub(now).Hours() / 24)
		result.DaysUntilExpiry = daysUntil

		switch {
		case expiryTime.Before(now):
			result.Status = "expired"
			result.StatusMsg = fmt.Sprintf("Cookie expired %d days ago", -daysUntil)
		case daysUntil < 7:
			result.Status = "expiring_soon"
			result.StatusMsg = fmt.Sprintf("Cookie expires in %d days", daysUntil)
		default:
			result.Status = "valid"
			result.StatusMsg = fmt.Sprintf("Cookie valid, expires in %d days", daysUntil)
		}
		return result, nil
	}

	daysSinceModified := int(now.Sub(info.ModTime()).Hours() / 24)
	if daysSinceModified > 30 {
		result.Status = "expiring_soon"
		result.StatusMsg = fmt.Sprintf("Cookie file not updated for %d days", daysSinceModified)
	} else {
		result.Status = "valid"
		result.StatusMsg = "Cookie file exists"
	}
	result.DaysUntilExpiry = -1
	return result, nil
}

func cookieFields(line string) ([]string, bool) {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "#HttpOnly_")
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, false
	}
	fields := strings.Split(line, "\t")
	return fields, len(fields) >= 7
}

// UploadCookie replaces the cookies file from a multipart upload or a
// "content" field.
func (h Handler) UploadCookie(c *gin.Context) {
	var cookieContent string

	file, _, err := c.Request.FormFile("file")
	if err == nil {
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeInvalidParams, "failed to read uploaded file", err))
			return
		}
		cookieContent = string(data)
	} else {
		var req struct {
			Content string `json:"content" form:"content"`
		}
		if err := c.ShouldBind(&req); err != nil || req.Content == "" {
			response.ErrorResponse(c, apperrors.New(apperrors.CodeInvalidParams, "please provide cookie content"))
			return
		}
		cookieContent = req.Content
	}

	validCookieLines := 0
	for _, line := range strings.Split(cookieContent, "\n") {
		if _, ok := cookieFields(line); ok {
			validCookieLines++
		}
	}
	if validCookieLines == 0 {
		response.ErrorResponse(c, apperrors.New(apperrors.CodeInvalidParams, "invalid cookie format, please use Netscape format"))
		return
	}

	path := cookieFilePath()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeFileWriteError, "failed to write cookie file", err))
			return
		}
	}
	if err := os.WriteFile(path, []byte(cookieContent), 0o600); err != nil {
		log.GetLogger().Error("UploadCookie write failed", zap.Error(err))
		response.ErrorResponse(c, apperrors.Wrap(apperrors.CodeFileWriteError, "failed to write cookie file", err))
		return
	}

	log.GetLogger().Info("cookie file updated", zap.Int("validCookies", validCookieLines))
	response.Success(c, gin.H{
		"cookieCount": validCookieLines,
		"message":     fmt.Sprintf("Successfully saved %d cookies", validCookieLines),
	})
}

// ValidateCookie checks that yt-dlp can fetch metadata with the current cookies.
func (h Handler) ValidateCookie(c *gin.Context) {
	path := cookieFilePath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		response.ErrorResponse(c, apperrors.New(apperrors.CodeCookiesExpired, "cookie file not found"))
		return
	}

	ytdlp := config.Conf.Deps.YtdlpPath
	if ytdlp == "" {
		ytdlp = "yt-dlp"
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Minute)
	defer cancel()

	cmd := execCommand(ctx, ytdlp, "--cookies", path, "--dump-json", "--no-download", cookieProbeURL)
	output, err := cmd.CombinedOutput()
	if err != nil {
		out := string(output)
		if strings.Contains(out, "Sign in to confirm") || strings.Contains(out, "LOGIN_REQUIRED") {
			response.ErrorResponse(c, apperrors.New(apperrors.CodeCookiesExpired, "cookie expired or invalid, please re-export"))
			return
		}
		response.ErrorResponse(c, apperrors.WrapWithDetail(apperrors.CodeCookiesExpired, "cookie validation failed",
			util.TruncateRunes(out, 200, "..."), err))
		return
	}

	response.Success(c, gin.H{
		"valid":   true,
		"message": "Cookie validation passed",
	})
}
