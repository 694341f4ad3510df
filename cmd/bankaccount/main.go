// Command bankaccount is a small worked example of a stream-per-aggregate
// client of the store: open an account, deposit, withdraw, and print the
// resulting balance. It never touches the database directly — it only
// exercises the aggregate package; wiring it to a concrete EventStore is
// left to the caller (see driver/sql/postgres for a constructor).
package main

import (
	"errors"
	"fmt"

	"github.com/ledgerflow/eventstore/aggregate"
)

var (
	// ErrInsufficientMoney occurs when a bank account has insufficient funds
	ErrInsufficientMoney = errors.New("insufficient money")
	// Ensure BankAccount implements the aggregate.Root interface
	_ aggregate.Root = &BankAccount{}
)

type (
	// BankAccount a simple AggregateRoot representing a bank account
	BankAccount struct {
		aggregate.BaseRoot

		accountID aggregate.ID
		balance   uint
	}

	// AccountOpened a domain event indicating that a bank account was opened
	AccountOpened struct {
		AccountID aggregate.ID `json:"account_id"`
	}

	// AccountCredited a domain event indicating that a bank account was credited
	AccountCredited struct {
		Amount uint `json:"amount"`
	}

	// AccountDebited a domain event indicating that a bank account was debited
	AccountDebited struct {
		Amount uint `json:"amount"`
	}
)

func main() {
	account, err := OpenBankAccount()
	if err != nil {
		panic(err)
	}

	if err := account.Deposit(100); err != nil {
		panic(err)
	}
	if err := account.Withdraw(10); err != nil {
		panic(err)
	}
	if err := account.Withdraw(20); err != nil {
		panic(err)
	}

	fmt.Printf("BankAccount %s has a balance of %d\n", account.AggregateID(), account.Balance())
}

// OpenBankAccount opens a new bank account
func OpenBankAccount() (*BankAccount, error) {
	accountID := aggregate.GenerateID()

	account := &BankAccount{
		accountID: accountID,
	}

	err := aggregate.RecordChange(account, AccountOpened{AccountID: accountID})

	return account, err
}

// AggregateID returns the bank account's aggregate.ID
func (b *BankAccount) AggregateID() aggregate.ID {
	return b.accountID
}

// Apply changes the state of the BankAccount based on a recorded change
func (b *BankAccount) Apply(change *aggregate.Changed) {
	switch event := change.Payload().(type) {
	case AccountOpened:
		b.accountID = event.AccountID
	case AccountCredited:
		b.balance += event.Amount
	case AccountDebited:
		b.balance -= event.Amount
	}
}

// Deposit adds an amount of money to the bank account
func (b *BankAccount) Deposit(amount uint) error {
	if amount == 0 {
		return nil
	}

	return aggregate.RecordChange(b, AccountCredited{Amount: amount})
}

// Withdraw removes an amount of money from the bank account
func (b *BankAccount) Withdraw(amount uint) error {
	if amount > b.balance {
		return ErrInsufficientMoney
	}

	return aggregate.RecordChange(b, AccountDebited{Amount: amount})
}

// Balance returns the current amount of money contained in the bank account
func (b *BankAccount) Balance() uint {
	return b.balance
}
