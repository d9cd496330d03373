package insights

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"pagepulse/internal/pkg/pages"
	"pagepulse/internal/pkg/referrers"
)

// Insight types
const (
	TypeTrafficSurge     = "Traffic Surge"
	TypeTrafficDrop      = "Traffic Drop"
	TypePerformanceIssue = "Performance Issue"
	TypeEngagementDrop   = "Engagement Drop"
	TypeConversionDrop   = "Conversion Drop"
)

// narrativeKey dispatches an anomaly to its narrative builder.
type narrativeKey struct {
	metricType MetricType
	metric     string
}

// narrativeFunc maps one (anomaly, optional correlation) pair to an insight.
// Every builder is a pure function: same inputs, same text.
type narrativeFunc func(a Anomaly, c *Correlation) BusinessInsight

var narratives = map[narrativeKey]narrativeFunc{
	{MetricTypeTraffic, MetricPageViews}:           trafficNarrative,
	{MetricTypePerformance, MetricLoadTime}:        loadTimeNarrative,
	{MetricTypeUserActions, MetricSessionDuration}: sessionDurationNarrative,
	{MetricTypeConversion, MetricConversionRate}:   conversionNarrative,
	{MetricTypeEngagement, MetricBounceRate}:       bounceRateNarrative,
	{MetricTypePerformance, MetricErrorRate}:       errorRateNarrative,
}

// Generate maps an anomaly and its optional correlation to a business
// insight. Unmapped (metricType, metric) pairs yield no insight; that is not
// an error.
func Generate(a Anomaly, c *Correlation) (BusinessInsight, bool) {
	builder, ok := narratives[narrativeKey{a.MetricType, a.Metric}]
	if !ok {
		return BusinessInsight{}, false
	}
	return builder(a, c), true
}

// formatChange renders a percentage change as a signed one-decimal string.
func formatChange(pct float64) string {
	return fmt.Sprintf("%+.1f%%", pct)
}

// absChange renders the magnitude of a percentage change without sign.
func absChange(pct float64) string {
	if pct < 0 {
		pct = -pct
	}
	return fmt.Sprintf("%.1f%%", pct)
}

var titleCaser = cases.Title(language.English)

// displayDevice normalizes a device tag for narrative text ("mobile" -> "Mobile").
func displayDevice(device string) string {
	return titleCaser.String(strings.ToLower(device))
}

var (
	countryQuery     *gountries.Query
	countryQueryOnce sync.Once
)

// regionName resolves an ISO country code to its common name, falling back to
// the raw code for unknown values.
func regionName(code string) string {
	if code == "" {
		return ""
	}
	countryQueryOnce.Do(func() {
		countryQuery = gountries.New()
	})
	country, err := countryQuery.FindCountryByAlpha(code)
	if err != nil {
		return code
	}
	return country.Name.Common
}

// contextMap assembles the context entries relevant to a narrative branch,
// dropping empty values.
func contextMap(pairs ...string) map[string]string {
	ctx := make(map[string]string)
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			ctx[pairs[i]] = pairs[i+1]
		}
	}
	if len(ctx) == 0 {
		return nil
	}
	return ctx
}

func trafficNarrative(a Anomaly, c *Correlation) BusinessInsight {
	source := referrers.FriendlyName(a.Context.Referrer)
	surge := a.PercentageChange > 0

	var insightType, text, action string
	if surge {
		insightType = TypeTrafficSurge
		switch source {
		case "Instagram":
			text = fmt.Sprintf("Page views for %s are up %s versus the 24h baseline, with the spike concentrated in Instagram traffic. Content linking to this page is likely going viral.", a.Page, absChange(a.PercentageChange))
			action = fmt.Sprintf("Capitalize on the momentum: feature related content on %s and keep share links and story CTAs live while the spike lasts.", a.Page)
		case "Google":
			text = fmt.Sprintf("Page views for %s are up %s versus the 24h baseline, driven by Google search traffic. Search rankings or demand for this page have improved.", a.Page, absChange(a.PercentageChange))
			action = "Double down on the keywords bringing this traffic and make sure the page still matches search intent."
		default:
			text = fmt.Sprintf("Page views for %s are up %s versus the 24h baseline.", a.Page, absChange(a.PercentageChange))
			action = "Verify the quality of the new traffic source and confirm infrastructure headroom for the extra load."
		}

		if m, ok := c.FindTag(TagTrafficUpConversionsDown); ok {
			text += fmt.Sprintf(" However, conversion rate fell %s over the same period - the new visitors are converting poorly.", absChange(m.PercentageChange))
			action += " Review pricing display and the purchase UX for visitors arriving from this source."
		}
	} else {
		insightType = TypeTrafficDrop
		if source == "Google" {
			text = fmt.Sprintf("Page views for %s are down %s versus the 24h baseline, concentrated in Google search traffic. Search visibility for this page may have declined.", a.Page, absChange(a.PercentageChange))
			action = "Check Search Console for ranking losses, crawl errors, or manual actions affecting this page."
		} else {
			text = fmt.Sprintf("Page views for %s are down %s versus the 24h baseline.", a.Page, absChange(a.PercentageChange))
			action = "Check whether campaigns, links, or upstream referrers pointing at this page stopped sending traffic."
		}
	}

	return BusinessInsight{
		Type:            insightType,
		Metric:          MetricPageViews,
		Page:            a.Page,
		Change:          formatChange(a.PercentageChange),
		BusinessInsight: text,
		SuggestedAction: action,
		DetectedAt:      a.Timestamp,
		Context: contextMap(
			"referrer", source,
			"pageCategory", a.Context.PageCategory,
		),
	}
}

func loadTimeNarrative(a Anomaly, c *Correlation) BusinessInsight {
	device := displayDevice(a.Context.DeviceType)

	var text, action string
	if device == "Mobile" {
		text = fmt.Sprintf("Average load time on %s climbed %s, with mobile devices hit hardest. Oversized images or missing CDN optimization are the usual suspects on mobile.", a.Page, absChange(a.PercentageChange))
		action = "Compress and lazy-load images and verify CDN caching for mobile assets."
	} else {
		text = fmt.Sprintf("Average load time on %s climbed %s versus the 24h baseline.", a.Page, absChange(a.PercentageChange))
		action = "Profile recent deploys and backend latency for this page."
	}

	if m, ok := c.FindTag(TagLoadTimeUpBounceRateUp); ok {
		text += fmt.Sprintf(" Bounce rate rose %s in the same window, confirming visitors are abandoning the slow page.", absChange(m.PercentageChange))
		action = "Treat this as urgent: " + strings.ToLower(action[:1]) + action[1:]
	}

	return BusinessInsight{
		Type:            TypePerformanceIssue,
		Metric:          MetricLoadTime,
		Page:            a.Page,
		Change:          formatChange(a.PercentageChange),
		BusinessInsight: text,
		SuggestedAction: action,
		DetectedAt:      a.Timestamp,
		Context: contextMap(
			"deviceType", device,
			"region", a.Context.Region,
			"regionName", regionName(a.Context.Region),
		),
	}
}

func sessionDurationNarrative(a Anomaly, _ *Correlation) BusinessInsight {
	var text, action string
	if pages.IsCheckout(a.Page) {
		text = fmt.Sprintf("Average session duration on %s dropped %s. On a checkout page this usually signals friction in the payment flow.", a.Page, absChange(a.PercentageChange))
		action = "Walk through the checkout funnel and look for broken payment methods, errors, or surprise costs."
	} else {
		text = fmt.Sprintf("Average session duration on %s dropped %s - visitors are leaving sooner than they used to.", a.Page, absChange(a.PercentageChange))
		action = "Review recent content or layout changes and check usability on this page."
	}

	return BusinessInsight{
		Type:            TypeEngagementDrop,
		Metric:          MetricSessionDuration,
		Page:            a.Page,
		Change:          formatChange(a.PercentageChange),
		BusinessInsight: text,
		SuggestedAction: action,
		DetectedAt:      a.Timestamp,
		Context: contextMap(
			"pageCategory", a.Context.PageCategory,
		),
	}
}

func conversionNarrative(a Anomaly, c *Correlation) BusinessInsight {
	var text, action string
	if c.HasTag(TagTrafficUpConversionsDown) {
		text = fmt.Sprintf("Conversion rate on %s dropped %s while traffic was rising. Under higher demand, pricing, stock availability, or trust signals may be failing new visitors.", a.Page, absChange(a.PercentageChange))
		action = "Check stock levels and pricing display, and verify the purchase path works for first-time visitors."
	} else {
		text = fmt.Sprintf("Conversion rate on %s dropped %s versus the 24h baseline.", a.Page, absChange(a.PercentageChange))
		action = "Review recent pricing or checkout changes and test the purchase path for technical errors."
	}

	return BusinessInsight{
		Type:            TypeConversionDrop,
		Metric:          MetricConversionRate,
		Page:            a.Page,
		Change:          formatChange(a.PercentageChange),
		BusinessInsight: text,
		SuggestedAction: action,
		DetectedAt:      a.Timestamp,
		Context: contextMap(
			"region", a.Context.Region,
			"regionName", regionName(a.Context.Region),
		),
	}
}

func bounceRateNarrative(a Anomaly, _ *Correlation) BusinessInsight {
	text := fmt.Sprintf("Bounce rate on %s rose %s versus the 24h baseline - more visitors are leaving without interacting.", a.Page, absChange(a.PercentageChange))
	action := "Check content relevance, page load performance, and the mobile experience on this page."

	return BusinessInsight{
		Type:            TypeEngagementDrop,
		Metric:          MetricBounceRate,
		Page:            a.Page,
		Change:          formatChange(a.PercentageChange),
		BusinessInsight: text,
		SuggestedAction: action,
		DetectedAt:      a.Timestamp,
		Context: contextMap(
			"deviceType", displayDevice(a.Context.DeviceType),
		),
	}
}

func errorRateNarrative(a Anomaly, _ *Correlation) BusinessInsight {
	text := fmt.Sprintf("Error rate on %s reached %.1f%%, %s above the 24h baseline.", a.Page, a.CurrentValue, absChange(a.PercentageChange))
	action := "Investigate application logs and recent deploys immediately; sustained errors directly cost conversions."

	return BusinessInsight{
		Type:            TypePerformanceIssue,
		Metric:          MetricErrorRate,
		Page:            a.Page,
		Change:          formatChange(a.PercentageChange),
		BusinessInsight: text,
		SuggestedAction: action,
		DetectedAt:      a.Timestamp,
		Context: contextMap(
			"region", a.Context.Region,
			"regionName", regionName(a.Context.Region),
		),
	}
}
