package game

import (
	"errors"

	"github.com/Rails-18xx/Rails-sub009/internal/model"
	"github.com/Rails-18xx/Rails-sub009/internal/stockmarket"
)

// ActionType discriminates the submitted action value.
type ActionType string

const (
	ActionStart       ActionType = "start_company"
	ActionBuy         ActionType = "buy_certificate"
	ActionSell        ActionType = "sell_shares"
	ActionUseSpecial  ActionType = "use_special_property"
	ActionPass        ActionType = "pass"
	ActionRequestTurn ActionType = "request_turn"
)

// Action is the discriminated value submitted by the acting party. Fields
// beyond Type and Player are read per action type.
type Action struct {
	Type   ActionType `json:"type"`
	Player string     `json:"player"`

	Company string `json:"company,omitempty"`
	// Shares is the share-unit count to buy or sell.
	Shares int `json:"shares,omitempty"`
	// Price is the chosen par price for start actions.
	Price int64 `json:"price,omitempty"`
	// From is the source holder for buy actions (IPO, pool, or treasury).
	From model.HolderKey `json:"from,omitempty"`
	// Special names the special property to exercise.
	Special string `json:"special,omitempty"`
	// AutoPass asks the engine to keep passing for this player until they
	// are implicated again.
	AutoPass bool `json:"auto_pass,omitempty"`
}

// ChangeType discriminates the reversible mutation records.
type ChangeType string

const (
	ChangeCertificateMove ChangeType = "certificate_move"
	ChangeCashMove        ChangeType = "cash_move"
	ChangePriceMove       ChangeType = "price_move"
	ChangeFlag            ChangeType = "flag"
)

// Change is one reversible mutation. An external log can invert any change:
// swap From/To for moves, restore Old for flags.
type Change struct {
	Type ChangeType `json:"type"`

	// Certificate moves.
	Certificate string           `json:"certificate,omitempty"`
	From        *model.HolderKey `json:"from,omitempty"`
	To          *model.HolderKey `json:"to,omitempty"`

	// Cash moves (reuses From/To).
	Amount int64 `json:"amount,omitempty"`

	// Price moves.
	Company  string                `json:"company,omitempty"`
	FromCell *stockmarket.Position `json:"from_cell,omitempty"`
	ToCell   *stockmarket.Position `json:"to_cell,omitempty"`
	Price    int64                 `json:"price,omitempty"`

	// Flag changes.
	Flag string `json:"flag,omitempty"`
	Old  string `json:"old,omitempty"`
	New  string `json:"new,omitempty"`
}

// Result reports an applied action. Rejected actions are reported as errors
// and produce no Result and no state change.
type Result struct {
	ActionID string   `json:"action_id"`
	Action   Action   `json:"action"`
	Changes  []Change `json:"changes"`

	RoundFinished    bool `json:"round_finished,omitempty"`
	GameEndTriggered bool `json:"game_end_triggered,omitempty"`
	Bankrupt         bool `json:"bankrupt,omitempty"`
}

// Validation errors. All are non-fatal: the action is rejected with a
// descriptive reason and state is untouched.
var (
	ErrNoActiveRound      = errors.New("no trading round in progress")
	ErrGameOver           = errors.New("the game has ended")
	ErrNotYourTurn        = errors.New("not this player's turn")
	ErrUnknownPlayer      = errors.New("unknown player")
	ErrUnknownCompany     = errors.New("unknown company")
	ErrUnknownSpecial     = errors.New("unknown or spent special property")
	ErrCompanyNotStarted  = errors.New("company has not been started")
	ErrCompanyStarted     = errors.New("company has already been started")
	ErrCompanyClosed      = errors.New("company is closed")
	ErrInvalidAmount      = errors.New("share amount must be positive")
	ErrInvalidPar         = errors.New("no start cell carries that par price")
	ErrInsufficientShares = errors.New("insufficient holdings for that amount")
	ErrNoCombination      = errors.New("holdings cannot form that amount")
	ErrPoolLimit          = errors.New("sale would exceed the pool share limit")
	ErrHoldLimit          = errors.New("purchase would exceed the company holding limit")
	ErrCertLimit          = errors.New("purchase would exceed the certificate limit")
	ErrTreasuryLimit      = errors.New("purchase would exceed the treasury share limit")
	ErrCannotAfford       = errors.New("cannot afford that purchase")
	ErrAlreadyBought      = errors.New("already bought a certificate this turn")
	ErrSellAfterBuy       = errors.New("selling after buying is not allowed this turn")
	ErrSellJustBought     = errors.New("certificates bought this turn may not be sold")
	ErrSoldThisRound      = errors.New("may not rebuy a company sold this round")
	ErrFirstRoundSale     = errors.New("no sales in the first stock round")
	ErrNoPresident        = errors.New("no eligible replacement president for that sale")
	ErrMustSellDown       = errors.New("holdings exceed a limit; only selling is allowed")
	ErrBuyOnlyOrSellOnly  = errors.New("a treasury may buy or sell this round, not both")
	ErrActionNotAllowed   = errors.New("action not allowed in this round")
	ErrCannotPassForced   = errors.New("cannot pass while required to raise cash")
)

// ErrCorruptState marks an internally detected invariant violation. Unlike
// validation errors it is fatal: the engine never attempts to repair state.
var ErrCorruptState = errors.New("game state corrupt")
