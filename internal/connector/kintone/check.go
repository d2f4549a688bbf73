package kintone

import (
	"context"
	"errors"
	"log"
	"net/url"
	"strconv"

	"github.com/nucleus/ucl-kintone/internal/connector/http"
)

// appsPageSize is the apps.json maximum page size.
const appsPageSize = 100

// CheckConnection verifies that every configured app is visible to the
// account and readable outside a guest space. Failures are returned as
// *AuthenticationError with a readable Reason.
func (c *Connector) CheckConnection(ctx context.Context) error {
	apps, err := c.listApps(ctx)
	if err != nil {
		return checkFailure("", err)
	}
	if len(apps) == 0 {
		return &AuthenticationError{Reason: ReasonNoApps}
	}

	byID := make(map[string]App, len(apps))
	for _, app := range apps {
		byID[app.AppID] = app
	}

	for _, appID := range c.config.AppIDs {
		app, ok := byID[appID]
		if !ok {
			return &AuthenticationError{Reason: ReasonUnknownApp, AppID: appID}
		}
		// Apps outside any space, or calls already routed through the
		// guest space API, need no space probe.
		if app.SpaceID == nil || c.config.GuestSpaceID != "" {
			continue
		}
		if _, err := c.Client.Get(ctx, c.apiPath("space.json"), url.Values{"id": {*app.SpaceID}}); err != nil {
			var httpErr *http.HTTPError
			if errors.As(err, &httpErr) && !httpErr.IsRateLimited() {
				log.Printf("kintone: app %s space %s is not readable: %v", appID, *app.SpaceID, err)
				return &AuthenticationError{Reason: ReasonGuestSpaceApp, AppID: appID, Err: err}
			}
			return checkFailure(appID, err)
		}
	}
	return nil
}

// listApps pages apps.json until a short page.
func (c *Connector) listApps(ctx context.Context) ([]App, error) {
	var all []App
	for offset := 0; ; offset += appsPageSize {
		query := url.Values{
			"limit":  {strconv.Itoa(appsPageSize)},
			"offset": {strconv.Itoa(offset)},
		}
		resp, err := c.Client.Get(ctx, c.apiPath("apps.json"), query)
		if err != nil {
			return nil, err
		}
		var body appsResponse
		if err := resp.JSON(&body); err != nil {
			return nil, err
		}
		all = append(all, body.Apps...)
		if len(body.Apps) < appsPageSize {
			return all, nil
		}
	}
}

func checkFailure(appID string, err error) *AuthenticationError {
	if isQuotaError(err) {
		log.Printf("kintone: API call limit is exceeded: %v", err)
		return &AuthenticationError{Reason: ReasonLimitExceeded, AppID: appID, Err: err}
	}
	log.Printf("kintone: connection check failed: %v", err)
	return &AuthenticationError{Reason: ReasonSystemError, AppID: appID, Err: err}
}
