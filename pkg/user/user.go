// Package user implements User Core (C11): identity lifecycle, credential
// hashing, session/status tokens, and the verification-code flow. It wires
// together pkg/relational (profile rows), pkg/searchindex (profile search),
// pkg/verifcache (Session/Status + VerificationCode), pkg/classifier
// (nickname/description moderation), and pkg/email (verification delivery).
//
// This package also implements the three REQUIRED fixes from spec.md §9:
// a missing verification-code id is a ValidationError rather than a crash,
// SetUserAvatar/SetUserNickname check user existence before touching any
// field, and every write operation validates its session_id against the
// cached Session/Status pair before proceeding.
package user

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"github.com/littleblus/breezechat/pkg/blobstore"
	"github.com/littleblus/breezechat/pkg/classifier"
	"github.com/littleblus/breezechat/pkg/email"
	"github.com/littleblus/breezechat/pkg/errs"
	"github.com/littleblus/breezechat/pkg/idgen"
	"github.com/littleblus/breezechat/pkg/log"
	"github.com/littleblus/breezechat/pkg/relational"
	"github.com/littleblus/breezechat/pkg/searchindex"
	"github.com/littleblus/breezechat/pkg/types"
	"github.com/littleblus/breezechat/pkg/verifcache"
)

const userIndexName = "user"

var passwordPattern = regexp.MustCompile(`^(?:\S{8,32})$`)
var hasLetter = regexp.MustCompile(`[A-Za-z]`)
var hasDigit = regexp.MustCompile(`\d`)
var hasSpace = regexp.MustCompile(`\s`)

// FileClient is the subset of File Core (C12) User Core calls to fetch and
// store avatar blobs. It is satisfied directly by *blobstore.Store in a
// single-process deployment, or by an RPC client stub in a split
// deployment; User Core does not care which.
type FileClient interface {
	PutSingleFile(name string, content []byte, size int64) (fileID string, err error)
	GetSingleFile(fileID string) ([]byte, error)
	GetMultiFile(ids []string) (map[string][]byte, error)
}

var _ FileClient = (*blobstore.Store)(nil)

// UserStore is the subset of pkg/relational.Store this package calls. It
// exists so tests can substitute an in-memory double instead of a live
// MySQL connection, the same interface-seam pattern pkg/discovery uses for
// pkg/coordination.Client.
type UserStore interface {
	InsertUser(ctx context.Context, u *types.User) error
	UpdateUser(ctx context.Context, u *types.User) error
	DeleteUser(ctx context.Context, userID string) error
	GetUserByID(ctx context.Context, userID string) (*types.User, error)
	GetUserByNickname(ctx context.Context, nickname string) (*types.User, error)
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
	ListUsersByIDs(ctx context.Context, ids []string) ([]*types.User, error)
}

var _ UserStore = (*relational.Store)(nil)

// ProfileIndex is the subset of pkg/searchindex.Index this package calls.
type ProfileIndex interface {
	Upsert(ctx context.Context, name, id string, doc any) error
}

var _ ProfileIndex = (*searchindex.Index)(nil)

// Service implements every UserService operation named in spec.md §4.11.
type Service struct {
	Store    UserStore
	Index    ProfileIndex // nil disables index write-through entirely
	Cache    *verifcache.Cache
	Files    FileClient
	Classify classifier.Port
	Mailer   email.Sender
	Salt     string
}

// RegisterResult is the common response shape for register/login style
// calls: success flag, echoed request id, and an error message on failure.
type RegisterResult struct {
	Success   bool
	RequestID string
	ErrMsg    string
	UserID    string
}

// LoginResult is the response shape for login-style calls.
type LoginResult struct {
	Success   bool
	RequestID string
	ErrMsg    string
	SessionID string
	UserID    string
}

func hashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

func validatePassword(password string) error {
	if !passwordPattern.MatchString(password) {
		return errs.Validation("密码格式错误")
	}
	if hasSpace.MatchString(password) {
		return errs.Validation("密码格式错误")
	}
	if !hasLetter.MatchString(password) || !hasDigit.MatchString(password) {
		return errs.Validation("密码格式错误")
	}
	return nil
}

func validateNickname(nickname string) error {
	if nickname == "" || len(nickname) > 32 {
		return errs.Validation("昵称格式错误")
	}
	return nil
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func validateEmail(addr string) error {
	if !emailPattern.MatchString(addr) {
		return errs.Validation("邮箱格式错误")
	}
	return nil
}

// UserRegister implements spec.md §4.11's nickname/password registration.
func (s *Service) UserRegister(ctx context.Context, requestID, nickname, password string) RegisterResult {
	rlog := log.WithRequestID(requestID)

	if err := validateNickname(nickname); err != nil {
		return fail(requestID, err)
	}
	if err := validatePassword(password); err != nil {
		return fail(requestID, err)
	}
	if s.Classify != nil {
		compliant, err := s.Classify.Check(ctx, nickname)
		if err != nil {
			rlog.Error().Err(err).Msg("classifier unavailable")
			return fail(requestID, errs.Dependency("获取分类服务失败", err))
		}
		if !compliant {
			return fail(requestID, errs.Validation("昵称包含违规内容"))
		}
	}
	if _, err := s.Store.GetUserByNickname(ctx, nickname); err == nil {
		return fail(requestID, errs.Conflict("昵称已存在"))
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fail(requestID, errs.Dependency("获取用户信息失败", err))
	}

	u := &types.User{
		UserID:       idgen.New16Hex(),
		Nickname:     nickname,
		PasswordHash: hashPassword(password, s.Salt),
	}
	return s.commitNewUser(ctx, requestID, u)
}

// commitNewUser inserts the relational row, then upserts the search-index
// document; on index failure, it erases the relational row (spec.md §4.11).
func (s *Service) commitNewUser(ctx context.Context, requestID string, u *types.User) RegisterResult {
	if err := s.Store.InsertUser(ctx, u); err != nil {
		return fail(requestID, errs.Dependency("创建用户失败", err))
	}
	if s.Index != nil {
		if err := s.Index.Upsert(ctx, userIndexName, u.UserID, u); err != nil {
			if derr := s.Store.DeleteUser(ctx, u.UserID); derr != nil {
				log.Critical("rollback of relational insert failed after index upsert error", derr)
			}
			return fail(requestID, errs.Dependency("索引用户失败", err))
		}
	}
	return RegisterResult{Success: true, RequestID: requestID, UserID: u.UserID}
}

// UserLogin implements spec.md §4.11's nickname/password login.
func (s *Service) UserLogin(ctx context.Context, requestID, nickname, password string) LoginResult {
	u, err := s.Store.GetUserByNickname(ctx, nickname)
	if errors.Is(err, sql.ErrNoRows) {
		return failLogin(requestID, errs.NotFound("用户不存在"))
	}
	if err != nil {
		return failLogin(requestID, errs.Dependency("获取用户信息失败", err))
	}
	if u.PasswordHash != hashPassword(password, s.Salt) {
		return failLogin(requestID, errs.Validation("密码错误"))
	}
	if s.Cache.HasStatus(u.UserID) {
		return failLogin(requestID, errs.Conflict("用户已登录"))
	}

	sessionID := idgen.New16Hex()
	if err := s.Cache.PutSession(sessionID, u.UserID); err != nil {
		return failLogin(requestID, errs.Dependency("创建会话失败", err))
	}
	return LoginResult{Success: true, RequestID: requestID, SessionID: sessionID, UserID: u.UserID}
}

// GetEmailVerifyCode implements spec.md §4.11.
func (s *Service) GetEmailVerifyCode(ctx context.Context, requestID, addr string) (codeID string, result RegisterResult) {
	if err := validateEmail(addr); err != nil {
		return "", fail(requestID, err)
	}
	code := fmt.Sprintf("%06d", rand.Intn(1000000))
	if s.Mailer != nil {
		if err := s.Mailer.SendVerificationCode(addr, code); err != nil {
			return "", fail(requestID, errs.Dependency("发送邮件失败", err))
		}
	}
	codeID = idgen.New16Hex()
	if err := s.Cache.PutCode(codeID, code, 10*time.Minute); err != nil {
		return "", fail(requestID, errs.Dependency("保存验证码失败", err))
	}
	return codeID, RegisterResult{Success: true, RequestID: requestID}
}

// verifyCode implements spec.md §9's REQUIRED fix: a missing code id is a
// ValidationError, never a nil-pointer dereference.
func (s *Service) verifyCode(codeID, code string) error {
	stored, ok := s.Cache.GetCode(codeID)
	if !ok {
		return errs.Validation("验证码错误")
	}
	if stored != code {
		return errs.Validation("验证码错误")
	}
	return nil
}

// EmailRegister implements spec.md §4.11.
func (s *Service) EmailRegister(ctx context.Context, requestID, addr, codeID, code string) RegisterResult {
	if err := validateEmail(addr); err != nil {
		return fail(requestID, err)
	}
	if err := s.verifyCode(codeID, code); err != nil {
		return fail(requestID, err)
	}
	if err := s.Cache.ConsumeCode(codeID); err != nil {
		return fail(requestID, errs.Dependency("清除验证码失败", err))
	}

	if _, err := s.Store.GetUserByEmail(ctx, addr); err == nil {
		return fail(requestID, errs.Conflict("邮箱已存在"))
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fail(requestID, errs.Dependency("获取用户信息失败", err))
	}

	userID := idgen.New16Hex()
	u := &types.User{
		UserID:   userID,
		Email:    addr,
		Nickname: fmt.Sprintf("BreezeChatUser_%s", userID),
	}
	return s.commitNewUser(ctx, requestID, u)
}

// EmailLogin implements spec.md §4.11.
func (s *Service) EmailLogin(ctx context.Context, requestID, addr, codeID, code string) LoginResult {
	if err := validateEmail(addr); err != nil {
		return failLogin(requestID, err)
	}
	if err := s.verifyCode(codeID, code); err != nil {
		return failLogin(requestID, err)
	}
	if err := s.Cache.ConsumeCode(codeID); err != nil {
		return failLogin(requestID, errs.Dependency("清除验证码失败", err))
	}

	u, err := s.Store.GetUserByEmail(ctx, addr)
	if errors.Is(err, sql.ErrNoRows) {
		return failLogin(requestID, errs.NotFound("用户不存在"))
	}
	if err != nil {
		return failLogin(requestID, errs.Dependency("获取用户信息失败", err))
	}
	if s.Cache.HasStatus(u.UserID) {
		return failLogin(requestID, errs.Conflict("用户已登录"))
	}

	sessionID := idgen.New16Hex()
	if err := s.Cache.PutSession(sessionID, u.UserID); err != nil {
		return failLogin(requestID, errs.Dependency("创建会话失败", err))
	}
	return LoginResult{Success: true, RequestID: requestID, SessionID: sessionID, UserID: u.UserID}
}

// UserInfoResult wraps a single profile lookup.
type UserInfoResult struct {
	Success   bool
	RequestID string
	ErrMsg    string
	User      *types.UserInfo
}

// GetUserInfo implements spec.md §4.11, fetching the avatar blob through
// FileClient when AvatarID is set.
func (s *Service) GetUserInfo(ctx context.Context, requestID, userID string) UserInfoResult {
	u, err := s.Store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return UserInfoResult{RequestID: requestID, ErrMsg: "用户不存在"}
	}
	if err != nil {
		return UserInfoResult{RequestID: requestID, ErrMsg: "获取用户信息失败"}
	}
	info := toUserInfo(u)
	if u.AvatarID != "" {
		content, err := s.Files.GetSingleFile(u.AvatarID)
		if err != nil {
			log.WithRequestID(requestID).Error().Err(err).Str("user_id", userID).Msg("file service query failed")
			return UserInfoResult{RequestID: requestID, ErrMsg: "获取头像失败"}
		}
		info.Avatar = content
	}
	return UserInfoResult{Success: true, RequestID: requestID, User: &info}
}

// MultiUserInfoResult wraps a batched profile lookup.
type MultiUserInfoResult struct {
	Success   bool
	RequestID string
	ErrMsg    string
	Users     []types.UserInfo
}

// GetMultiUserInfo implements spec.md §4.11 and §8 invariant 8: it
// de-duplicates the requested ids, returns exactly one entry per distinct
// id present in the store, and fails the whole call if any requested id is
// missing.
func (s *Service) GetMultiUserInfo(ctx context.Context, requestID string, userIDs []string) MultiUserInfoResult {
	unique := dedupe(userIDs)
	rows, err := s.Store.ListUsersByIDs(ctx, unique)
	if err != nil {
		return MultiUserInfoResult{RequestID: requestID, ErrMsg: "获取用户信息失败"}
	}
	if len(rows) != len(unique) {
		return MultiUserInfoResult{RequestID: requestID, ErrMsg: "用户不存在"}
	}

	out := make([]types.UserInfo, 0, len(rows))
	for _, u := range rows {
		out = append(out, toUserInfo(u))
	}

	avatarIDs := dedupe(avatarIDsOf(rows))
	if len(avatarIDs) > 0 {
		files, err := s.Files.GetMultiFile(avatarIDs)
		if err != nil {
			log.WithRequestID(requestID).Error().Err(err).Msg("file service query failed")
			return MultiUserInfoResult{RequestID: requestID, ErrMsg: "获取头像失败"}
		}
		for i := range out {
			if out[i].AvatarID != "" {
				out[i].Avatar = files[out[i].AvatarID]
			}
		}
	}
	return MultiUserInfoResult{Success: true, RequestID: requestID, Users: out}
}

// avatarIDsOf collects the non-empty AvatarID of every row, for the deduped
// batch fetch GetMultiUserInfo issues against File Core.
func avatarIDsOf(rows []*types.User) []string {
	ids := make([]string, 0, len(rows))
	for _, u := range rows {
		if u.AvatarID != "" {
			ids = append(ids, u.AvatarID)
		}
	}
	return ids
}

func toUserInfo(u *types.User) types.UserInfo {
	return types.UserInfo{
		UserID:      u.UserID,
		Nickname:    u.Nickname,
		Description: u.Description,
		AvatarID:    u.AvatarID,
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// SetUserAvatar implements spec.md §4.11's write-through update, including
// the REQUIRED fix from spec.md §9: existence is checked and session
// ownership validated before any field is touched.
func (s *Service) SetUserAvatar(ctx context.Context, requestID, sessionID, userID string, fileName string, content []byte, size int64) RegisterResult {
	if !s.Cache.ValidateSession(sessionID, userID) {
		return fail(requestID, errs.Validation("会话无效"))
	}
	prev, err := s.Store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return fail(requestID, errs.NotFound("用户不存在"))
	}
	if err != nil {
		return fail(requestID, errs.Dependency("获取用户信息失败", err))
	}

	fileID, err := s.Files.PutSingleFile(fileName, content, size)
	if err != nil {
		return fail(requestID, errs.Dependency("上传头像失败", err))
	}

	return s.writeThroughUpdate(ctx, requestID, prev, func(u *types.User) { u.AvatarID = fileID })
}

// SetUserNickname implements spec.md §4.11, including the REQUIRED fix from
// spec.md §9.
func (s *Service) SetUserNickname(ctx context.Context, requestID, sessionID, userID, nickname string) RegisterResult {
	if !s.Cache.ValidateSession(sessionID, userID) {
		return fail(requestID, errs.Validation("会话无效"))
	}
	if err := validateNickname(nickname); err != nil {
		return fail(requestID, err)
	}
	prev, err := s.Store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return fail(requestID, errs.NotFound("用户不存在"))
	}
	if err != nil {
		return fail(requestID, errs.Dependency("获取用户信息失败", err))
	}
	if s.Classify != nil {
		compliant, err := s.Classify.Check(ctx, nickname)
		if err != nil {
			return fail(requestID, errs.Dependency("获取分类服务失败", err))
		}
		if !compliant {
			return fail(requestID, errs.Validation("昵称包含违规内容"))
		}
	}

	return s.writeThroughUpdate(ctx, requestID, prev, func(u *types.User) { u.Nickname = nickname })
}

// SetUserDescription implements spec.md §4.11.
func (s *Service) SetUserDescription(ctx context.Context, requestID, sessionID, userID, description string) RegisterResult {
	if !s.Cache.ValidateSession(sessionID, userID) {
		return fail(requestID, errs.Validation("会话无效"))
	}
	if len(description) > 256 {
		return fail(requestID, errs.Validation("简介格式错误"))
	}
	prev, err := s.Store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return fail(requestID, errs.NotFound("用户不存在"))
	}
	if err != nil {
		return fail(requestID, errs.Dependency("获取用户信息失败", err))
	}
	if s.Classify != nil {
		compliant, err := s.Classify.Check(ctx, description)
		if err != nil {
			return fail(requestID, errs.Dependency("获取分类服务失败", err))
		}
		if !compliant {
			return fail(requestID, errs.Validation("简介包含违规内容"))
		}
	}

	return s.writeThroughUpdate(ctx, requestID, prev, func(u *types.User) { u.Description = description })
}

// SetUserEmail implements spec.md §4.11.
func (s *Service) SetUserEmail(ctx context.Context, requestID, sessionID, userID, addr, codeID, code string) RegisterResult {
	if !s.Cache.ValidateSession(sessionID, userID) {
		return fail(requestID, errs.Validation("会话无效"))
	}
	if err := validateEmail(addr); err != nil {
		return fail(requestID, err)
	}
	if err := s.verifyCode(codeID, code); err != nil {
		return fail(requestID, err)
	}
	prev, err := s.Store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return fail(requestID, errs.NotFound("用户不存在"))
	}
	if err != nil {
		return fail(requestID, errs.Dependency("获取用户信息失败", err))
	}
	if err := s.Cache.ConsumeCode(codeID); err != nil {
		return fail(requestID, errs.Dependency("清除验证码失败", err))
	}

	return s.writeThroughUpdate(ctx, requestID, prev, func(u *types.User) { u.Email = addr })
}

// writeThroughUpdate implements spec.md §4.11's write-through pattern:
// update the search index first with the mutated copy, then the relational
// row; on relational failure, restore the index to its pre-state; if that
// restore also fails, log CRITICAL (spec.md §8 invariant 7).
func (s *Service) writeThroughUpdate(ctx context.Context, requestID string, prev *types.User, mutate func(*types.User)) RegisterResult {
	next := *prev
	mutate(&next)

	if s.Index != nil {
		if err := s.Index.Upsert(ctx, userIndexName, next.UserID, next); err != nil {
			return fail(requestID, errs.Dependency("更新索引失败", err))
		}
	}

	if err := s.Store.UpdateUser(ctx, &next); err != nil {
		if s.Index != nil {
			if rerr := s.Index.Upsert(ctx, userIndexName, prev.UserID, *prev); rerr != nil {
				log.Critical("index restore failed after relational update error", rerr)
				return fail(requestID, errs.Consistency("更新用户信息失败", err))
			}
		}
		return fail(requestID, errs.Consistency("更新用户信息失败", err))
	}
	return RegisterResult{Success: true, RequestID: requestID, UserID: next.UserID}
}

func fail(requestID string, err error) RegisterResult {
	logFailure(requestID, err)
	return RegisterResult{RequestID: requestID, ErrMsg: messageOf(err)}
}

func failLogin(requestID string, err error) LoginResult {
	logFailure(requestID, err)
	return LoginResult{RequestID: requestID, ErrMsg: messageOf(err)}
}

func messageOf(err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}

func logFailure(requestID string, err error) {
	rlog := log.WithRequestID(requestID)
	switch errs.Classify(err) {
	case errs.KindDependency:
		rlog.Error().Err(err).Msg("user operation failed")
	case errs.KindNotFound, errs.KindConflict:
		rlog.Info().Err(err).Msg("user operation rejected")
	default:
		rlog.Debug().Err(err).Msg("user operation rejected")
	}
}
