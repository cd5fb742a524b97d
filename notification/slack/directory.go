package slack

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/oriser/tramper/user"
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"github.com/slack-go/slack"
)

const (
	FuzzyLimit        = 10
	FuzzyMinimumScore = 75
)

var ErrNoSlackUser = errors.New("no matching slack user")

type cacheEntry struct {
	slackID string
	expired time.Time
}

// Directory maps platform users to Slack user IDs. It tries the user's transport ID,
// then the email address, then a fuzzy match of the full name over the workspace members.
type Directory struct {
	client            *slack.Client
	users             user.Store
	lock              sync.RWMutex
	cache             map[string]cacheEntry
	maxCacheEntryTime time.Duration
}

type matchUser struct {
	user       slack.User
	matchScore int
}

func NewDirectory(client *slack.Client, users user.Store, maxCacheEntryTime time.Duration) *Directory {
	return &Directory{
		client:            client,
		users:             users,
		cache:             make(map[string]cacheEntry),
		maxCacheEntryTime: maxCacheEntryTime,
	}
}

func (d *Directory) saveCache(userID, slackID string) {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.cache[userID] = cacheEntry{
		slackID: slackID,
		expired: time.Now().Add(d.maxCacheEntryTime),
	}
}

func (d *Directory) getFromCache(userID string) string {
	d.lock.RLock()
	entry, ok := d.cache[userID]
	d.lock.RUnlock()

	if !ok {
		return ""
	}

	if time.Now().After(entry.expired) {
		d.lock.Lock()
		delete(d.cache, userID)
		d.lock.Unlock()
		log.Printf("Slack ID of user %q expired from cache\n", userID)
		return ""
	}
	return entry.slackID
}

func (d *Directory) Resolve(ctx context.Context, userID string) (string, error) {
	if slackID := d.getFromCache(userID); slackID != "" {
		return slackID, nil
	}

	u, err := d.users.GetUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}

	slackID, err := d.lookup(ctx, u)
	if err != nil {
		return "", err
	}
	d.saveCache(userID, slackID)
	return slackID, nil
}

func (d *Directory) lookup(ctx context.Context, u *user.User) (string, error) {
	if u.TransportID != "" {
		return u.TransportID, nil
	}

	if u.Email != "" {
		slackUser, err := d.client.GetUserByEmailContext(ctx, u.Email)
		if err == nil && slackUser != nil {
			return slackUser.ID, nil
		}
		log.Printf("Slack lookup by email for user %s failed, trying by name: %v\n", u.ID, err)
	}

	if u.FullName == "" {
		return "", ErrNoSlackUser
	}
	return d.lookupByName(ctx, u.FullName)
}

func (d *Directory) lookupByName(ctx context.Context, name string) (string, error) {
	var (
		best *matchUser
		err  error
	)
	paginatedUsers := d.client.GetUsersPaginated()
	for {
		paginatedUsers, err = paginatedUsers.Next(ctx)
		if err != nil {
			break
		}

		found, matchErr := findMatchedUsers(name, paginatedUsers.Users)
		if matchErr != nil {
			return "", fmt.Errorf("find matched users: %w", matchErr)
		}
		for _, matched := range found {
			if best == nil || matched.matchScore > best.matchScore {
				best = matched
			}
		}
	}
	if err = paginatedUsers.Failure(err); err != nil {
		return "", fmt.Errorf("get users from slack: %w", err)
	}

	if best == nil {
		return "", ErrNoSlackUser
	}
	return best.user.ID, nil
}

func firstName(u slack.User) string {
	if u.Profile.FirstName != "" {
		return u.Profile.FirstName
	}
	return strings.Split(u.Profile.RealNameNormalized, " ")[0]
}

// findMatchedUsers fuzzy searches name in the users real names. A single word is
// matched against first names as well.
func findMatchedUsers(name string, users []slack.User) ([]*matchUser, error) {
	justFirst := len(strings.Fields(name)) == 1

	searchedValues := make([]string, 0, len(users))
	searchedValueToUser := make(map[string]slack.User, len(users))
	for _, u := range users {
		if u.Deleted || u.IsBot {
			continue
		}
		if _, exists := searchedValueToUser[u.Profile.RealNameNormalized]; !exists && u.Profile.RealNameNormalized != "" {
			searchedValues = append(searchedValues, u.Profile.RealNameNormalized)
			searchedValueToUser[u.Profile.RealNameNormalized] = u
		}
		if justFirst {
			first := firstName(u)
			if _, exists := searchedValueToUser[first]; !exists && first != "" {
				searchedValues = append(searchedValues, first)
				searchedValueToUser[first] = u
			}
		}
	}
	if len(searchedValues) == 0 {
		return nil, nil
	}

	findings, err := fuzzy.Extract(name, searchedValues, FuzzyLimit, FuzzyMinimumScore, fuzzy.UQRatio)
	if err != nil {
		return nil, fmt.Errorf("search function: %w", err)
	}

	found := make([]*matchUser, 0, len(findings))
	for _, finding := range findings {
		u, ok := searchedValueToUser[finding.Match]
		if !ok {
			return nil, fmt.Errorf("fuzzy search returned %q which maps to no user", finding.Match)
		}
		found = append(found, &matchUser{user: u, matchScore: finding.Score})
	}
	return found, nil
}
