package dispatch

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Telegram MarkdownV2 requires every reserved character in plain text to be
// backslash-escaped.
var mdEscaper = strings.NewReplacer(
	"_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`,
	"=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

var codeEscaper = strings.NewReplacer("\\", `\\`, "`", "\\`")

var urlEscaper = strings.NewReplacer("\\", `\\`, ")", `\)`)

func escape(s string) string { return mdEscaper.Replace(s) }

func bold(s string) string { return "*" + escape(s) + "*" }

func code(s string) string { return "`" + codeEscaper.Replace(s) + "`" }

func link(label, url string) string {
	return "[" + escape(label) + "](" + urlEscaper.Replace(url) + ")"
}

const (
	guideMEVStealing = "https://docs.lido.fi/staking-modules/csm/guides/mev-stealing"
	guideSlashing    = "https://docs.lido.fi/staking-modules/csm/guides/slashing"
	guideExiting     = "https://dvt-homestaker.stakesaurus.com/bonded-validators-setup/lido-csm/exiting-csm-validators"
)

const weiDecimalsEther = 18

var (
	weiPerGwei   = big.NewInt(1_000_000_000)
	weiPerMwei   = big.NewInt(1_000_000)
	weiPerFinney = new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil)
	weiPerEther  = new(big.Int).Exp(big.NewInt(10), big.NewInt(weiDecimalsEther), nil)
)

// humanizeWei renders a wei amount in the largest sensible denomination.
func humanizeWei(wei *big.Int) string {
	if wei == nil {
		wei = new(big.Int)
	}
	switch {
	case wei.Cmp(weiPerFinney) >= 0:
		return formatDenom(wei, weiPerEther) + " ether"
	case wei.Cmp(weiPerMwei) >= 0:
		return formatDenom(wei, weiPerGwei) + " gwei"
	default:
		return wei.String() + " wei"
	}
}

func formatDenom(wei, denom *big.Int) string {
	quo, rem := new(big.Int).QuoRem(wei, denom, new(big.Int))
	if rem.Sign() == 0 {
		return quo.String()
	}
	width := len(denom.String()) - 1
	frac := strings.TrimRight(fmt.Sprintf("%0*s", width, rem.String()), "0")
	return quo.String() + "." + frac
}

const eventDateLayout = "Mon 02 Jan 2006, 03:04PM UTC"

func formatEventDate(t time.Time) string {
	return t.UTC().Format(eventDateLayout)
}

// Per-event one-line summaries shown in the event list.
var eventDescriptions = map[string]string{
	"DepositedSigningKeysCountChanged":         "- 🤩 Node Operator's keys received deposits",
	"ELRewardsStealingPenaltyReported":         "- 🚨 Penalty for stealing EL rewards reported",
	"ELRewardsStealingPenaltySettled":          "- 🚨 EL rewards stealing penalty confirmed and applied",
	"ELRewardsStealingPenaltyCancelled":        "- 😮‍💨 Cancelled penalty for stealing EL rewards",
	"InitialSlashingSubmitted":                 "- 🚨 Initial slashing submitted for one of the validators",
	"KeyRemovalChargeApplied":                  "- 🔑 Applied charge for key removal",
	"BondCurveSet":                             "- ℹ️ Node Operator type changed",
	"NodeOperatorManagerAddressChangeProposed": "- ℹ️ New manager address proposed",
	"NodeOperatorManagerAddressChanged":        "- ✅ Manager address changed",
	"NodeOperatorRewardAddressChangeProposed":  "- ℹ️ New rewards address proposed",
	"NodeOperatorRewardAddressChanged":         "- ✅ Rewards address changed",
	"StuckSigningKeysCountChanged":             "- 🚨 Reported stuck keys that were not exited in time",
	"VettedSigningKeysCountDecreased":          "- 🚨 Uploaded invalid keys",
	"WithdrawalSubmitted":                      "- 👀 Key withdrawal information submitted",
	"ValidatorExitDelayProcessed":              "- 🚨 Exit delay processed; penalty queued for withdrawal",
	"TriggeredExitFeeRecorded":                 "- 🚨 Triggered exit fee recorded; penalty will be charged on exit",
	"StrikesPenaltyProcessed":                  "- 🚨 Strikes penalty processed; validator exited for poor performance",
	"TotalSigningKeysCountChanged":             "- 👀 New keys uploaded or removed",
	"ValidatorExitRequest":                     "- 🚨 One of the validators requested to exit",
	"PublicRelease":                            "- 🎉 Public release of CSM!",
	"DistributionLogUpdated":                   "- 📈 New rewards distributed",
	"TargetValidatorsCountChanged":             "- 🚨 Target validators count changed",
	"Initialized":                              "- ✅ CSM v2 is here!",
}

type eventListSection struct {
	title  string
	intro  string
	events []string
}

var eventListSections = []eventListSection{
	{
		title: "Key Management Events:",
		intro: "Changes related to keys and their status.",
		events: []string{
			"VettedSigningKeysCountDecreased",
			"StuckSigningKeysCountChanged",
			"DepositedSigningKeysCountChanged",
			"TotalSigningKeysCountChanged",
			"KeyRemovalChargeApplied",
			"BondCurveSet",
			"TargetValidatorsCountChanged",
		},
	},
	{
		title: "Address and Reward Changes:",
		intro: "Changes or proposals regarding management and reward addresses.",
		events: []string{
			"NodeOperatorManagerAddressChangeProposed",
			"NodeOperatorManagerAddressChanged",
			"NodeOperatorRewardAddressChangeProposed",
			"NodeOperatorRewardAddressChanged",
		},
	},
	{
		title: "Slashing and Stealing Events:",
		intro: "Alerts for validator status and MEV stealing penalties.",
		events: []string{
			"InitialSlashingSubmitted",
			"ELRewardsStealingPenaltyReported",
			"ELRewardsStealingPenaltySettled",
			"ELRewardsStealingPenaltyCancelled",
		},
	},
	{
		title: "Withdrawal and Exit Requests:",
		intro: "Notifications for exit requests and confirmation of exits.",
		events: []string{
			"ValidatorExitRequest",
			"ValidatorExitDelayProcessed",
			"TriggeredExitFeeRecorded",
			"StrikesPenaltyProcessed",
			"WithdrawalSubmitted",
		},
	},
	{
		title: "Common CSM Events for all the Node Operators:",
		events: []string{
			"DistributionLogUpdated",
			"PublicRelease",
			"Initialized",
		},
	},
}

// EventListText renders the subscription event list, restricted to the
// allowed event set.
func EventListText(allowed map[string]struct{}) string {
	var b strings.Builder
	b.WriteString(escape("Here is the list of events you will receive notifications for:"))
	b.WriteString("\n")
	b.WriteString(escape("A 🚨 means urgent action is required from you"))
	b.WriteString("\n\n")

	for _, section := range eventListSections {
		var lines []string
		for _, name := range section.events {
			if _, ok := allowed[name]; !ok {
				continue
			}
			lines = append(lines, escape(eventDescriptions[name]))
		}
		if len(lines) == 0 {
			continue
		}
		b.WriteString(bold(section.title))
		b.WriteString("\n")
		if section.intro != "" {
			b.WriteString(escape(section.intro))
			b.WriteString("\n")
		}
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Conversation texts.
const (
	WelcomeText = "Welcome to the CSM Sentinel!\n\n" +
		"Here you can follow Node Operators and receive notifications about their events.\n\n" +
		"Use /follow <id> and /unfollow <id> to manage subscriptions, /events for the event list."

	FollowUsage           = "Usage: /follow <node operator id>"
	UnfollowUsage         = "Usage: /unfollow <node operator id>"
	NotFollowingAnyText   = "You are not following any Node Operators."
	CantFollowText        = "Invalid Node Operator id. Please enter the correct id."
	CantUnfollowText      = "Can't unfollow the Node Operator you are not following.\nPlease enter the correct id."
	SubscriptionsDenied   = "This command is available to the admin only."
	SubscriptionsEmpty    = "No active subscriptions yet."
)

func FollowedText(opID string) string {
	return fmt.Sprintf("You are now following Node Operator #%s", opID)
}

func UnfollowedText(opID string) string {
	return fmt.Sprintf("You are no longer following Node Operator #%s", opID)
}

func FollowingText(ids []string) string {
	return fmt.Sprintf("Node Operators you are following: %s", strings.Join(ids, ", "))
}

// NoNewBlocksAlert is sent to the admin chat by the staleness monitor.
func NoNewBlocksAlert(interval time.Duration, block uint64) string {
	return fmt.Sprintf("⚠️ No new blocks processed in the last %d minutes. Latest block: %d",
		int(interval.Minutes()), block)
}

// defaultEventText is used when no handler is registered for an event.
func defaultEventText(name, args string) string {
	return escape(fmt.Sprintf("Event %s emitted with data:\n%s", name, args))
}

// Per-event message templates. Dynamic parts arrive pre-formatted as plain
// strings and are escaped here.

func depositedKeysText(count *big.Int) string {
	return "🤩 " + bold("Keys were deposited!") + "\n\n" +
		escape(fmt.Sprintf("New deposited keys count: %s", count))
}

func stealingPenaltyCancelledText(remaining string) string {
	return "😮‍💨 " + bold("EL rewards stealing penalty cancelled") + "\n\n" +
		escape("Remaining amount: ") + code(remaining)
}

func stealingPenaltyReportedText(rewards, blockLink string) string {
	return "🚨 " + bold("Penalty for stealing EL rewards reported") + "\n\n" +
		code(rewards) + escape(" rewards from the ") + link("block", blockLink) +
		escape(" were transferred to the wrong EL address") + "\n" +
		escape("See the ") + link("guide", guideMEVStealing) + escape(" for more details")
}

func stealingPenaltySettledText(burnt string) string {
	return "🚨 " + bold("EL rewards stealing penalty confirmed and applied") + "\n\n" +
		code(burnt) + escape(" burnt from bond")
}

func initialSlashingText(key, keyURL string) string {
	return "🚨 " + bold("Initial slashing submitted for one of the validators") + "\n\n" +
		escape("Slashed key: ") + link(key, keyURL) + "\n" +
		escape("See the ") + link("guide", guideSlashing) + escape(" for more details")
}

func keyRemovalChargeText(amount string) string {
	return "🔑 " + bold("Key removal charge applied") + "\n\n" +
		escape("Amount of charge: ") + code(amount)
}

func bondCurveSetText(curveID *big.Int, uiURL string) string {
	return "ℹ️ " + bold("Node Operator type changed") + "\n\n" +
		escape("New type id: ") + code(curveID.String()) + "\n" +
		escape("Operational requirements may now differ. Check the ") +
		link("CSM UI", uiURL) + escape(" for updated guidance")
}

func managerAddressProposedText(address string) string {
	return "ℹ️ " + bold("New manager address proposed") + "\n\n" +
		escape("Proposed address: ") + code(address) + "\n" +
		escape("To complete the change, the Node Operator must confirm it from the new address.")
}

func managerAddressRevokedText() string {
	return "ℹ️ " + bold("Proposed manager address revoked")
}

func managerAddressChangedText(address string) string {
	return "✅ " + bold("Manager address changed") + "\n\n" +
		escape("New address: ") + code(address)
}

func rewardAddressProposedText(address string) string {
	return "ℹ️ " + bold("New rewards address proposed") + "\n\n" +
		escape("Proposed address: ") + code(address) + "\n" +
		escape("To complete the change, the Node Operator must confirm it from the new address.")
}

func rewardAddressRevokedText() string {
	return "ℹ️ " + bold("Proposed reward address revoked")
}

func rewardAddressChangedText(address string) string {
	return "✅ " + bold("Rewards address changed") + "\n\n" +
		escape("New address: ") + code(address)
}

func stuckKeysText(count *big.Int, uiURL string) string {
	return "🚨 " + bold("Stuck keys reported") + "\n\n" +
		code(count.String()) + escape(" key(s) were not exited in time. Check ") +
		link("CSM UI", uiURL) + escape(" for more details")
}

func vettedKeysDecreasedText(uiURL string) string {
	return "🚨 " + bold("Vetted keys count decreased") + "\n\n" +
		escape("Consider removing invalid keys. Check ") +
		link("CSM UI", uiURL) + escape(" for more details")
}

func withdrawalSubmittedText(key, keyURL, amount, uiURL string) string {
	return "👀 " + bold("Information about validator withdrawal has been submitted") + "\n\n" +
		escape("Withdrawn key: ") + link(key, keyURL) +
		escape(" with exit balance: ") + code(amount) + "\n\n" +
		escape("Check the amount of the bond released at ") + link("CSM UI", uiURL)
}

func totalKeysChangedText(count, countBefore *big.Int) string {
	if count.Cmp(countBefore) > 0 {
		return "👀 " + bold("New keys uploaded") + "\n\n" +
			escape("Keys count: ") + code(fmt.Sprintf("%s -> %s", countBefore, count))
	}
	return "🚨 " + bold("Key removed") + "\n\n" +
		escape("Total keys: ") + code(count.String())
}

func validatorExitRequestText(key, keyURL, requestDate, exitUntil string) string {
	return "🚨 " + bold("Validator exit requested") + "\n\n" +
		escape("Make sure to exit the key before "+exitUntil) + "\n" +
		escape("Check the ") + link("Exiting CSM validators", guideExiting) +
		escape(" guide for more details") + "\n" +
		escape("Requested key: ") + link(key, keyURL) + "\n" +
		escape("Request date: ") + code(requestDate)
}

func exitDelayProcessedText(key, keyURL, penalty string) string {
	return "🚨 " + bold("Validator exit delay processed") + "\n\n" +
		escape("Validator: ") + link(key, keyURL) + "\n" +
		escape("Delay penalty: ") + code(penalty) + "\n\n" +
		escape("Penalty will be applied when the validator exits")
}

func triggeredExitFeeText(key, keyURL, paidFee, recordedFee string) string {
	return "🚨 " + bold("Exit fee recorded") + "\n\n" +
		escape("Validator: ") + link(key, keyURL) + "\n" +
		escape("Fee paid now: ") + code(paidFee) + "\n" +
		escape("Fee to be charged on exit: ") + code(recordedFee) + "\n\n" +
		escape("Exit fee will be applied when the validator exits")
}

func strikesPenaltyText(key, keyURL, penalty string) string {
	return "🚨 " + bold("Strikes penalty processed") + "\n\n" +
		escape("Validator: ") + link(key, keyURL) + "\n" +
		escape("Penalty amount: ") + code(penalty) + "\n\n" +
		escape("Penalty will be charged when the validator withdraws")
}

func publicReleaseText() string {
	return "🎉 " + bold("Public release of CSM is here!") + "\n\n" +
		escape("Now everyone can join the CSM and upload any number of keys.")
}

func rewardsDistributedText(uiURL string) string {
	return "📈 " + bold("Rewards distributed!") + "\n\n" +
		escape("Follow the ") + link("CSM UI", uiURL) +
		escape(" to check new claimable rewards.")
}

func operatorStrikesText(validators []string, uiURL string) string {
	return "📈 " + bold("Rewards distributed!") + "\n\n" +
		escape(fmt.Sprintf("Validator(s) %s received strikes for poor performance.", strings.Join(validators, ", "))) + "\n" +
		escape("Follow the ") + link("CSM UI", uiURL) +
		escape(" to check the details.")
}

func initializedV2Text() string {
	return "✅ " + bold("🎉 CSM v2 is here!")
}

const (
	targetLimitModeOff  = 0
	targetLimitModeSoft = 1
	targetLimitModeHard = 2
)

// targetValidatorsCountText mirrors the limit transition wording matrix of
// the on-chain target limit modes.
func targetValidatorsCountText(modeBefore uint64, limitBefore *big.Int, modeAfter uint64, limitAfter *big.Int) string {
	header := "🚨 " + bold("Target validators count changed") + "\n\n"

	switch {
	case modeAfter == targetLimitModeSoft && limitAfter.Sign() == 0:
		return header + escape("The limit has been set to zero.") + "\n" +
			escape("All keys will be requested to exit first.")
	case modeAfter == targetLimitModeHard && limitAfter.Sign() == 0:
		return header + escape("The limit has been set to zero.") + "\n" +
			escape("All keys will be requested to exit immediately.")
	case modeBefore == targetLimitModeSoft && modeAfter == targetLimitModeSoft && limitAfter.Cmp(limitBefore) < 0:
		diff := new(big.Int).Sub(limitBefore, limitAfter)
		return header +
			escape(fmt.Sprintf("The limit has been decreased from %s to %s.", limitBefore, limitAfter)) + "\n" +
			escape(fmt.Sprintf("%s more key(s) will be requested to exit first.", diff))
	case modeBefore == targetLimitModeHard && modeAfter == targetLimitModeHard && limitAfter.Cmp(limitBefore) < 0:
		diff := new(big.Int).Sub(limitBefore, limitAfter)
		return header +
			escape(fmt.Sprintf("The limit has been decreased from %s to %s.", limitBefore, limitAfter)) + "\n" +
			escape(fmt.Sprintf("%s more key(s) will be requested to exit immediately.", diff))
	case modeAfter == targetLimitModeSoft:
		return header +
			escape(fmt.Sprintf("The limit has been set to %s.", limitAfter)) + "\n" +
			escape(fmt.Sprintf("%s keys will be requested to exit first.", limitAfter))
	case modeAfter == targetLimitModeHard:
		return header +
			escape(fmt.Sprintf("The limit has been set to %s.", limitAfter)) + "\n" +
			escape(fmt.Sprintf("%s keys will be requested to exit immediately.", limitAfter))
	case modeAfter == targetLimitModeOff:
		return header + escape("The limit has been set to zero. No keys will be requested to exit.")
	default:
		return header +
			escape(fmt.Sprintf("Mode changed from %d to %d.", modeBefore, modeAfter)) + "\n" +
			escape(fmt.Sprintf("Limit changed from %s to %s.", limitBefore, limitAfter))
	}
}

// footer appends the operator id and a transaction link to a message.
func footer(opID, txLink string) string {
	if opID == "" {
		return "\n\n" + link("Transaction", txLink)
	}
	return "\n\n" + escape(fmt.Sprintf("nodeOperatorId: %s", opID)) + "\n" + link("Transaction", txLink)
}
